package download

// bz2Payload is what bz2Fixture decompresses to; the fixture bytes are a
// pre-compressed copy so the tests do not need a bzip2 encoder.
func bz2Payload() []byte {
	payload := []byte("BSPFILE")
	for i := 0; i < 4; i++ {
		for b := 0; b < 256; b++ {
			payload = append(payload, byte(b))
		}
	}
	return payload
}

var bz2Fixture = []byte{
	66, 90, 104, 57, 49, 65, 89, 38, 83, 89, 97, 253, 32, 110, 0, 0, 134, 127,
	255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255,
	255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255,
	255, 255, 255, 192, 2, 28, 0, 1, 38, 0, 9, 128, 0, 152, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 147, 0,
	4, 192, 0, 76, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 73, 128, 2, 96, 0, 38, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 5, 85, 84, 104,
	208, 208, 26, 0, 9, 166, 19, 0, 0, 0, 19, 13, 52, 76, 1, 160, 0, 0, 0, 4,
	105, 128, 2, 96, 0, 0, 0, 0, 0, 0, 0, 0, 0, 4, 96, 0, 0, 77, 24, 35, 8, 79,
	180, 58, 0, 136, 17, 18, 4, 137, 17, 50, 40, 65, 17, 82, 44, 69, 200, 193,
	25, 35, 68, 25, 27, 35, 132, 116, 143, 17, 242, 64, 72, 73, 17, 35, 36,
	132, 148, 147, 31, 129, 39, 63, 18, 80, 74, 73, 81, 43, 63, 34, 88, 75, 73,
	113, 47, 38, 4, 196, 153, 19, 50, 104, 77, 73, 177, 55, 39, 4, 228, 157,
	19, 178, 120, 79, 73, 241, 63, 40, 5, 4, 161, 20, 50, 136, 81, 74, 49, 249,
	148, 114, 144, 82, 74, 69, 40, 132, 42, 16, 164, 41, 84, 166, 159, 161, 78,
	32, 41, 229, 64, 135, 212, 72, 34, 164, 84, 200, 106, 169, 22, 42, 196, 28,
	49, 2, 85, 202, 193, 89, 43, 69, 108, 174, 21, 210, 188, 87, 203, 1, 97,
	44, 69, 140, 178, 22, 82, 204, 89, 203, 65, 105, 45, 69, 172, 182, 22, 210,
	220, 91, 203, 129, 113, 46, 69, 204, 186, 23, 82, 236, 93, 207, 212, 253,
	139, 193, 251, 151, 146, 244, 94, 203, 225, 125, 47, 197, 252, 192, 24, 19,
	4, 96, 204, 33, 133, 63, 131, 12, 97, 204, 65, 137, 49, 70, 44, 198, 24,
	211, 28, 99, 204, 129, 145, 50, 70, 76, 202, 25, 83, 44, 101, 204, 193,
	153, 51, 70, 108, 206, 25, 211, 60, 103, 205, 1, 161, 52, 70, 140, 210, 26,
	83, 76, 105, 205, 65, 169, 53, 70, 172, 214, 26, 211, 92, 107, 205, 129,
	177, 54, 70, 204, 218, 27, 83, 108, 109, 205, 193, 185, 55, 70, 236, 222,
	27, 211, 124, 111, 206, 1, 193, 56, 71, 12, 226, 28, 83, 140, 113, 206, 65,
	201, 57, 71, 44, 230, 28, 211, 156, 115, 206, 129, 209, 58, 71, 76, 234,
	29, 83, 172, 117, 207, 228, 254, 142, 193, 217, 59, 71, 108, 238, 29, 211,
	188, 119, 207, 1, 225, 60, 71, 140, 242, 30, 83, 204, 121, 207, 65, 233,
	61, 71, 172, 246, 30, 211, 251, 61, 199, 248, 127, 167, 188, 248, 31, 19,
	228, 124, 207, 248, 255, 207, 161, 245, 62, 199, 220, 93, 201, 20, 225, 66,
	65, 135, 244, 129, 184,
}
