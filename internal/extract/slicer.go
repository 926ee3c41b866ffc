package extract

// MaxLayerZ reads the final layer height some slicers leave in a header
// comment:
//
//	; max_layer_z = 12.400
//
// A number that does not parse yields 0.
func MaxLayerZ(line string) (float32, bool) {
	for i := 0; i < len(line); i++ {
		if line[i] != ';' {
			continue
		}
		c := cursor{s: line, i: i + 1}
		c.spaces()
		if !c.lit("max_layer_z") {
			continue
		}
		c.spaces()
		if !c.lit("=") {
			continue
		}
		c.spaces()
		if v, ok := c.number(); ok {
			return parseFloat(v, 0), true
		}
	}
	return 0, false
}
