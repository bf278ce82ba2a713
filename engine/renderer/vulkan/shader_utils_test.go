package vulkan

import "testing"

func TestShaderModuleInfoSizeIsInBytes(t *testing.T) {
	code := []byte{
		0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00,
	}
	info := shaderModuleInfo(code)
	if info.CodeSize != uint64(len(code)) {
		t.Errorf("CodeSize is %d, want %d bytes", info.CodeSize, len(code))
	}
	if len(info.PCode)*4 != len(code) || info.PCode[0] != 0x07230203 {
		t.Errorf("code words %x", info.PCode)
	}
}
