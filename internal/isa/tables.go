package isa

// Position identifies which letter table applies to a tag letter.
type Position int

const (
	PosVariable Position = iota // first letter
	PosModifier                 // second letter, when in the modifier set
	PosFunction                 // everything after
)

func (p Position) String() string {
	switch p {
	case PosVariable:
		return "variable"
	case PosModifier:
		return "modifier"
	case PosFunction:
		return "function"
	}
	return "unknown"
}

// Tables are keyed by letter and never mutated after init.
var (
	variables = map[byte]string{
		'A': "Analysis",
		'B': "Burner/Combustion",
		'C': "Conductivity",
		'D': "Density",
		'E': "Voltage",
		'F': "Flow",
		'G': "Gauging/Position",
		'H': "Hand (Manual)",
		'I': "Current",
		'J': "Power",
		'K': "Time/Schedule",
		'L': "Level",
		'M': "Moisture/Humidity",
		'N': "User Choice",
		'O': "User Choice",
		'P': "Pressure",
		'Q': "Quantity",
		'R': "Radiation",
		'S': "Speed/Frequency",
		'T': "Temperature",
		'U': "Multivariable",
		'V': "Vibration",
		'W': "Weight/Force",
		'X': "Unclassified",
		'Y': "Event/State",
		'Z': "Position/Dimension",
	}

	modifiers = map[byte]string{
		'D': "Differential",
		'F': "Ratio/Fraction",
		'Q': "Integrate/Totalize",
		'S': "Safety",
		'K': "Time Rate of Change",
		'M': "Momentary/Peak",
		'J': "Scan",
	}

	functions = map[byte]string{
		'A': "Alarm",
		'C': "Controller",
		'E': "Element/Sensor",
		'G': "Glass/Gauge",
		'H': "High",
		'I': "Indicator",
		'K': "Control Station",
		'L': "Low",
		'M': "Middle/Intermediate",
		'O': "Orifice",
		'P': "Point (Test)",
		'R': "Recorder",
		'S': "Switch",
		'T': "Transmitter",
		'U': "Multifunction",
		'V': "Valve/Damper",
		'W': "Well",
		'Y': "Relay/Compute",
		'Z': "Actuator/Driver",
	}
)

// Lookup reports the meaning of letter at the given position.
func Lookup(letter byte, pos Position) (string, bool) {
	var table map[byte]string
	switch pos {
	case PosVariable:
		table = variables
	case PosModifier:
		table = modifiers
	case PosFunction:
		table = functions
	default:
		return "", false
	}
	name, ok := table[letter]
	return name, ok
}
