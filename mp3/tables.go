package mp3

// Version is the MPEG Audio version bits from byte 1 of the frame header.
type Version int

const (
	VersionReserved Version = iota
	Version1
	Version2
	Version25
)

// Layer is the MPEG Audio layer bits from byte 1 of the frame header.
type Layer int

const (
	LayerReserved Layer = iota
	LayerI
	LayerII
	LayerIII
)

// ChannelMode is the 2-bit channel mode from byte 3.
type ChannelMode int

const (
	ChannelStereo ChannelMode = iota
	ChannelJointStereo
	ChannelDualChannel
	ChannelMono
)

// versionFromBits decodes the 2-bit version field: 00=2.5, 01=reserved,
// 10=MPEG2, 11=MPEG1.
func versionFromBits(b byte) Version {
	switch b {
	case 0x0:
		return Version25
	case 0x2:
		return Version2
	case 0x3:
		return Version1
	default:
		return VersionReserved
	}
}

// layerFromBits decodes the 2-bit layer field: 00=reserved, 01=LayerIII,
// 10=LayerII, 11=LayerI.
func layerFromBits(b byte) Layer {
	switch b {
	case 0x1:
		return LayerIII
	case 0x2:
		return LayerII
	case 0x3:
		return LayerI
	default:
		return LayerReserved
	}
}

// bitrateTableV1 holds kbps values indexed [layer][index] for MPEG-1; index
// 0 is free-format, 15 is invalid in every row.
var bitrateTableV1 = map[Layer][16]int{
	LayerI:   {0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, -1},
	LayerII:  {0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, -1},
	LayerIII: {0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, -1},
}

// bitrateTableV2 covers MPEG-2 and MPEG-2.5, which share one table: Layer I
// differs from the shared Layer II/III row.
var bitrateTableV2 = map[Layer][16]int{
	LayerI:   {0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, -1},
	LayerII:  {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1},
	LayerIII: {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1},
}

// bitrateKbps returns the bitrate in kbps for (version, layer, index), or
// -1 for the invalid index (15) and 0 for free-format (index 0).
func bitrateKbps(v Version, l Layer, index int) int {
	if index < 0 || index > 15 {
		return -1
	}
	table := bitrateTableV1
	if v != Version1 {
		table = bitrateTableV2
	}
	row, ok := table[l]
	if !ok {
		return -1
	}
	return row[index]
}

// sampleRateTable holds Hz values indexed [version][index]; index 3 is
// reserved in every version.
var sampleRateTable = map[Version][4]int{
	Version1:  {44100, 48000, 32000, -1},
	Version2:  {22050, 24000, 16000, -1},
	Version25: {11025, 12000, 8000, -1},
}

func sampleRateHz(v Version, index int) int {
	row, ok := sampleRateTable[v]
	if !ok || index < 0 || index > 3 {
		return -1
	}
	return row[index]
}

// samplesPerFrame returns the fixed sample count for (version, layer).
func samplesPerFrame(v Version, l Layer) int {
	switch l {
	case LayerI:
		return 384
	case LayerII:
		return 1152
	case LayerIII:
		if v == Version1 {
			return 1152
		}
		return 576
	default:
		return 0
	}
}

// layerIIForbidden reports the forbidden (bitrate, channel-mode) pairs for
// MPEG-1 Layer II: free-format-adjacent combinations where mono can't carry
// the listed bitrates and stereo/joint/dual can't carry the low ones.
func layerIIForbidden(kbps int, mode ChannelMode) bool {
	if mode == ChannelMono {
		switch kbps {
		case 224, 256, 320, 384:
			return true
		}
		return false
	}
	switch kbps {
	case 32, 48, 56, 80:
		return true
	}
	return false
}
