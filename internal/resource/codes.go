package resource

// Short field codes and their human-readable names. The table follows the
// controller firmware's property names; a code missing here means the table
// is older than the fields being projected.
var fieldNames = map[string]string{
	"h":   "health",
	"s":   "status",
	"ow":  "owner",
	"owp": "owner-preferred",
	"t":   "temperature",
	"ts":  "temperature-status",
	"cj":  "current-job",
	"cjp": "current-job-completion",
	"poh": "power-on-hours",
	"rs":  "redundancy-status",
	"fw":  "firmware-version",
	"sp":  "speed",
	"ps":  "port-status",
	"ss":  "sfp-status",
	"fh":  "flash-health",
	"fs":  "flash-status",
	"12v": "power-12v",
	"5v":  "power-5v",
	"33v": "power-33v",
	"12i": "power-12i",
	"5i":  "power-5i",
	"io":  "iops",
	"cpu": "cpu-load",
}

// CodeHealth is the field code every projected component carries.
const CodeHealth = "h"

// FieldName returns the human-readable name for a short code.
func FieldName(code string) (string, bool) {
	name, ok := fieldNames[code]
	return name, ok
}
