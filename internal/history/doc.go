// Package history tracks which tools a session has called successfully.
//
// The dispatcher consults a Tracker to decide whether to prepend an advisory
// prerequisite note to a response. Entries expire after a TTL and the
// tracker holds a bounded number of tool names, evicting the least recently
// used first.
package history
