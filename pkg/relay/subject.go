package relay

import "strings"

// natsSubject maps a bus topic to a NATS subject under prefix: path segments become subject
// tokens and characters NATS reserves become underscores.
//
//	natsSubject("quakebridge", "heartbeat/rate") == "quakebridge.heartbeat.rate"
func natsSubject(prefix, topic string) string {
	segments := strings.Split(topic, "/")
	tokens := make([]string, 0, len(segments)+1)
	if prefix != "" {
		tokens = append(tokens, prefix)
	}
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		tokens = append(tokens, strings.Map(func(r rune) rune {
			switch r {
			case '.', '*', '>', ' ', '\t', '\r', '\n':
				return '_'
			}
			return r
		}, seg))
	}
	return strings.Join(tokens, ".")
}

// kafkaTopic maps a bus topic to a legal Kafka topic name ([a-zA-Z0-9._-]) under prefix.
func kafkaTopic(prefix, topic string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == '/':
			return '.'
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		}
		return '_'
	}, strings.Trim(topic, "/"))
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
