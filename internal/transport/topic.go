package transport

import "strings"

// topicMatches reports whether an MQTT topic filter matches a topic name.
// "+" matches exactly one level and a trailing "#" matches the remainder.
func topicMatches(filter, topic string) bool {
	if filter == topic {
		return true
	}
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, f := range fl {
		if f == "#" {
			return i == len(fl)-1
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
