package malgo

import "unsafe"

const bytesPerSample = 4 // f32

// float32View reinterprets a little-endian f32 device buffer without copying.
// miniaudio hands out buffers aligned for the sample format.
func float32View(b []byte) []float32 {
	if len(b) < bytesPerSample {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/bytesPerSample)
}

// byteView is the inverse of float32View
func byteView(f []float32) []byte {
	if len(f) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&f[0])), len(f)*bytesPerSample)
}
