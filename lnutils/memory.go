package lnutils

// Zero overwrites every byte of the given slices with zero. It is used to
// clear secret material once it is no longer needed.
func Zero(bufs ...[]byte) {
	for _, b := range bufs {
		clear(b)
	}
}

// Zero32 clears a fixed size secret such as a blinding factor or a private
// scalar.
func Zero32(arrs ...*[32]byte) {
	for _, a := range arrs {
		if a != nil {
			*a = [32]byte{}
		}
	}
}
