// Package stream transcodes assistant events to and from the line-delimited
// event stream served by the chat endpoint.
//
// Each record is an "event: <type>" line followed by a "data: <json>" line
// and a blank line:
//
//	event: text
//	data: {"text":"Hel"}
//
//	event: tool
//	data: {"tool":"read_file"}
//
//	event: done
//	data: {"text":"Hello","toolsUsed":["read_file"]}
//
// A failed run ends with an "error" record carrying the message, the tools
// used and the side effects already applied.
package stream
