package segment

import "strings"

// ParseLabel splits a composite label such as "Anand_VUNagar_DC (Gujarat)" into
// city ("Anand"), state ("Gujarat") and place ("VUNagar").
//
// The label is split at its first space: the head's part before the first '_'
// is the city, the tail with parentheses removed is the state. The place is the
// second '_'-separated field of the whole label. Parts that are not present come
// back empty; no error is reported.
func ParseLabel(label string) (city, state, place string) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", "", ""
	}
	head, tail, hasTail := strings.Cut(label, " ")
	city, _, _ = strings.Cut(head, "_")
	if hasTail {
		state = strings.NewReplacer("(", "", ")", "").Replace(tail)
	}
	if parts := strings.SplitN(label, "_", 3); len(parts) > 1 {
		place = parts[1]
	}
	return city, state, place
}

// PincodeExtractor pulls a postal code out of a facility code.
type PincodeExtractor interface {
	ExtractPincode(code string) string
}

// OffsetPincode takes code[Start:End], clipped to the code length.
// It assumes every facility code shares a prefix of Start characters
// (e.g. "IND" in IND388121AAA).
type OffsetPincode struct {
	Start int
	End   int
}

// DefaultPincode returns the offset extractor for codes shaped like IND388121AAA.
func DefaultPincode() PincodeExtractor { return OffsetPincode{Start: 3, End: 9} }

func (o OffsetPincode) ExtractPincode(code string) string {
	start, end := o.Start, o.End
	if start < 0 {
		start = 0
	}
	if end > len(code) {
		end = len(code)
	}
	if start >= end {
		return ""
	}
	return code[start:end]
}

// DigitsPincode returns the first Length consecutive digits found in the code.
type DigitsPincode struct {
	Length int
}

func (d DigitsPincode) ExtractPincode(code string) string {
	n := d.Length
	if n <= 0 {
		n = 6
	}
	run := 0
	for i := 0; i < len(code); i++ {
		if c := code[i]; c >= '0' && c <= '9' {
			run++
			if run == n {
				return code[i-n+1 : i+1]
			}
			continue
		}
		run = 0
	}
	return ""
}
