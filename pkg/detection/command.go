package detection

// CommandThreshold is the minimum score for a top label to count as a command.
const CommandThreshold = 0.7

// AudioCommand is the result of one audio polling cycle.
type AudioCommand int

const (
	// CommandNone means no actionable command was heard.
	CommandNone AudioCommand = iota
	// CommandOn switches the mode gate to active.
	CommandOn
	// CommandOff switches the mode gate to inactive.
	CommandOff
)

// String returns the lowercase command label.
func (c AudioCommand) String() string {
	switch c {
	case CommandOn:
		return "on"
	case CommandOff:
		return "off"
	default:
		return "none"
	}
}

// Top returns the highest scoring detection. Ties keep the first one seen.
// ok is false for an empty list.
func Top(dets []RawDetection) (best RawDetection, ok bool) {
	for i, d := range dets {
		if i == 0 || d.Score > best.Score {
			best = d
		}
	}
	return best, len(dets) > 0
}

// CommandFrom maps raw audio detections to a command using CommandThreshold.
func CommandFrom(dets []RawDetection) AudioCommand {
	return CommandWithThreshold(dets, CommandThreshold)
}

// CommandWithThreshold maps raw audio detections to a command.
//
// Only the top label is considered, and only the exact labels "on" and "off"
// are recognized. Anything else, including other labels above the threshold,
// yields CommandNone.
func CommandWithThreshold(dets []RawDetection, threshold float64) AudioCommand {
	top, ok := Top(dets)
	if !ok || top.Score <= threshold {
		return CommandNone
	}
	switch top.Label {
	case "on":
		return CommandOn
	case "off":
		return CommandOff
	default:
		return CommandNone
	}
}
