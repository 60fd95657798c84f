package mqtt

import "strings"

// SensorDataTopic is the topic sensor nodes publish readings to.
const SensorDataTopic = "sensors/data"

// validFilter reports whether filter is a well-formed MQTT topic filter.
//
// '#' may only appear as the whole last level and '+' only as a whole level.
func validFilter(filter string) bool {
	if filter == "" {
		return false
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return false
		}
		if strings.Contains(level, "+") && level != "+" {
			return false
		}
	}
	return true
}

// matchTopic reports whether a concrete topic matches a subscription filter.
func matchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}

	// Wildcards never match topics starting with '$' (broker system topics).
	if strings.HasPrefix(topic, "$") {
		return false
	}

	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, level := range fl {
		if level == "#" {
			return true
		}
		if i >= len(tl) {
			return false
		}
		if level != "+" && level != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
