package synth

// scriptedRandom replays fixed draws; an exhausted script yields zeros.
type scriptedRandom struct {
	normals  []float64
	uniforms []float64
}

func (r *scriptedRandom) NormFloat64() float64 {
	if len(r.normals) == 0 {
		return 0
	}
	v := r.normals[0]
	r.normals = r.normals[1:]
	return v
}

func (r *scriptedRandom) Float64() float64 {
	if len(r.uniforms) == 0 {
		return 0
	}
	v := r.uniforms[0]
	r.uniforms = r.uniforms[1:]
	return v
}
