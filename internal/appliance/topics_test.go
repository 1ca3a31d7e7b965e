package appliance

import "testing"

func TestResolveTemplate(t *testing.T) {
	tests := []struct {
		name      string
		template  string
		rootTopic string
		serial    string
		want      string
	}{
		{
			name:      "both markers",
			template:  "@/@/status/current",
			rootTopic: "475",
			serial:    "AB1-CD-EFG2345H",
			want:      "475/AB1-CD-EFG2345H/status/current",
		},
		{
			name:      "single marker",
			template:  "@/broadcast",
			rootTopic: "475",
			serial:    "AB1-CD-EFG2345H",
			want:      "475/broadcast",
		},
		{
			name:      "no markers",
			template:  "system/announce",
			rootTopic: "475",
			serial:    "AB1-CD-EFG2345H",
			want:      "system/announce",
		},
		{
			name:      "command topic",
			template:  "@/@/command",
			rootTopic: "475",
			serial:    "AB1-CD-EFG2345H",
			want:      "475/AB1-CD-EFG2345H/command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveTemplate(tt.template, tt.rootTopic, tt.serial)
			if got != tt.want {
				t.Errorf("ResolveTemplate(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestTopicClassString(t *testing.T) {
	tests := []struct {
		class TopicClass
		want  string
	}{
		{TopicUnexpected, "unexpected"},
		{TopicSubscribed, "subscribed"},
		{TopicCommand, "command"},
		{TopicExpected, "expected"},
	}

	for _, tt := range tests {
		if got := tt.class.String(); got != tt.want {
			t.Errorf("TopicClass(%d).String() = %q, want %q", tt.class, got, tt.want)
		}
	}
}
