package cups

import "printrig/services/orchestrator"

// optionsFor returns the lp -o options for a model family. DNP units run
// the raw driver and want the 4x6 size in points; Canon SELPHY and
// generic class printers take the friendlier media names.
func optionsFor(model orchestrator.ModelClass) []string {
	switch model {
	case orchestrator.ModelDNPQW410:
		return []string{"media=w288h432"}
	case orchestrator.ModelCanonSelphy:
		return []string{"media=4x6", "ColorModel=RGB", "quality=5"}
	default:
		return []string{"media=4x6", "ColorModel=RGB"}
	}
}
