package ui

// iconBytes is a 16x16 PNG of an eye.
var iconBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10, 0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0xf3, 0xff,
	0x61, 0x00, 0x00, 0x00, 0x41, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda, 0x63, 0x60, 0xa0, 0x05, 0xd0,
	0xe8, 0xb9, 0xf3, 0x1f, 0x1b, 0xa6, 0x48, 0x33, 0x51, 0x86, 0x10, 0xd2, 0x8c, 0xd7, 0x10, 0x62,
	0x35, 0x63, 0x35, 0x04, 0x9b, 0x02, 0x11, 0x11, 0x11, 0x14, 0x8c, 0xd7, 0x10, 0x42, 0x9a, 0x71,
	0x19, 0x32, 0x9c, 0x0d, 0x20, 0x39, 0x10, 0x29, 0x8e, 0x46, 0xaa, 0x24, 0x24, 0xaa, 0x24, 0x65,
	0xaa, 0x64, 0x26, 0x52, 0x01, 0x00, 0xbf, 0xe7, 0x64, 0xb4, 0xad, 0xba, 0x1d, 0x72, 0x00, 0x00,
	0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}
