package appliance

import "strings"

// TemplateMarker is the placeholder symbol in topic templates. The first
// occurrence resolves to the device root topic, the second to the serial
// number.
//
// Example: "@/@/status/current" with root topic "475" and serial
// "AB1-CD-EFG2345H" resolves to "475/AB1-CD-EFG2345H/status/current".
const TemplateMarker = "@"

// topicSegments is the number of leading path segments carrying device
// identity (root topic, then serial number).
const topicSegments = 2

// ResolveTemplate substitutes the device identity into a topic template.
//
// Parameters:
//   - template: Topic template with up to two marker occurrences
//   - rootTopic: Product-type code for the first marker
//   - serial: Device serial for the second marker
//
// Returns:
//   - string: The concrete topic
func ResolveTemplate(template, rootTopic, serial string) string {
	resolved := strings.Replace(template, TemplateMarker, rootTopic, 1)
	return strings.Replace(resolved, TemplateMarker, serial, 1)
}

// TopicClass is the classification of an inbound topic against the
// device's subscription configuration.
type TopicClass int

// Topic classifications.
const (
	// TopicUnexpected means the topic matches no configured template.
	TopicUnexpected TopicClass = iota

	// TopicSubscribed means the topic is a required status topic.
	TopicSubscribed

	// TopicCommand means the topic is the device's command topic
	// (inbound traffic on it is an echo of our own publish).
	TopicCommand

	// TopicExpected means the topic is informational: known, but not
	// dispatched to consumers.
	TopicExpected
)

// String returns the classification name for logging.
func (c TopicClass) String() string {
	switch c {
	case TopicSubscribed:
		return "subscribed"
	case TopicCommand:
		return "command"
	case TopicExpected:
		return "expected"
	default:
		return "unexpected"
	}
}
