package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	tagBool = "!!bool"
	tagInt  = "!!int"
)

// UnmarshalYAML accepts a number or false.
func (l *LastMessages) UnmarshalYAML(value *yaml.Node) error {
	switch value.ShortTag() {
	case tagBool:
		var b bool
		if err := value.Decode(&b); err != nil {
			return err
		}
		if b {
			return fmt.Errorf("line %d: lastMessages must be a number or false", value.Line)
		}
		*l = 0
		return nil
	case tagInt:
		var n int
		if err := value.Decode(&n); err != nil {
			return err
		}
		*l = LastMessages(n)
		return nil
	default:
		return fmt.Errorf("line %d: lastMessages must be a number or false", value.Line)
	}
}

// UnmarshalYAML accepts a bool or an object. Fields missing from the object
// keep their current values.
func (s *SemanticRecall) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.ShortTag() != tagBool {
			return fmt.Errorf("line %d: semanticRecall must be a bool or an object", value.Line)
		}
		return value.Decode(&s.Enabled)
	case yaml.MappingNode:
		type plain SemanticRecall
		s.Enabled = true
		return value.Decode((*plain)(s))
	default:
		return fmt.Errorf("line %d: semanticRecall must be a bool or an object", value.Line)
	}
}

// UnmarshalYAML accepts a number or {before, after}.
func (r *MessageRange) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.ShortTag() != tagInt {
			return fmt.Errorf("line %d: messageRange must be a number or {before, after}", value.Line)
		}
		var n int
		if err := value.Decode(&n); err != nil {
			return err
		}
		r.Before, r.After = n, n
		return nil
	case yaml.MappingNode:
		type plain MessageRange
		return value.Decode((*plain)(r))
	default:
		return fmt.Errorf("line %d: messageRange must be a number or {before, after}", value.Line)
	}
}
