package ppu

// The background fetcher and its FIFO are isolated from PPU's live register
// state so they can be driven by tests with a synthetic tile map, then
// reused as-is by the scanline composer that PPU.renderScanline drives.

// VRAMReader provides read-only access for the fetcher or scanline helpers.
// It abstracts how VRAM bytes are fetched (tests vs. the live PPU).
type VRAMReader interface {
	Read(addr uint16) byte
}

// vramReader is an unexported alias used internally so scanline helpers read
// naturally without repeating the exported name everywhere.
type vramReader = VRAMReader

// fifo is a simple ring buffer for 2-bit color indices (0..3).
type fifo struct {
	buf  [32]byte // room for several tiles
	head int
	tail int
	size int
}

func (q *fifo) Clear()   { q.head, q.tail, q.size = 0, 0, 0 }
func (q *fifo) Len() int { return q.size }
func (q *fifo) Push(ci byte) bool {
	if q.size == len(q.buf) {
		return false
	}
	q.buf[q.tail] = ci & 0x03
	q.tail = (q.tail + 1) % len(q.buf)
	q.size++
	return true
}
func (q *fifo) Pop() (byte, bool) {
	if q.size == 0 {
		return 0, false
	}
	v := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return v, true
}

// bgFetcher pulls one tile row (8 pixels) into the FIFO.
type bgFetcher struct {
	mem           VRAMReader
	fifo          *fifo
	mapBase       uint16 // 0x9800 or 0x9C00
	tileData8000  bool   // true: 0x8000 addressing; false: 0x8800 signed
	tileIndexAddr uint16 // tile index address within map
	fineY         byte   // 0..7 within tile
}

func newBGFetcher(mem VRAMReader, f *fifo) *bgFetcher { return &bgFetcher{mem: mem, fifo: f} }

// Configure sets tilemap and addressing mode for the next fetch.
func (fch *bgFetcher) Configure(mapBase uint16, tileData8000 bool, tileIndexAddr uint16, fineY byte) {
	fch.mapBase = mapBase
	fch.tileData8000 = tileData8000
	fch.tileIndexAddr = tileIndexAddr
	fch.fineY = fineY & 7
}

// Fetch pushes 8 pixels (color indices) for the current tile row to the FIFO.
func (fch *bgFetcher) Fetch() {
	tileNum := fch.mem.Read(fch.tileIndexAddr)
	var base uint16
	if fch.tileData8000 {
		base = 0x8000 + uint16(tileNum)*16 + uint16(fch.fineY)*2
	} else {
		base = 0x9000 + uint16(int8(tileNum))*16 + uint16(fch.fineY)*2
	}
	lo := fch.mem.Read(base)
	hi := fch.mem.Read(base + 1)
	for px := 0; px < 8; px++ {
		bit := 7 - byte(px)
		ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
		_ = fch.fifo.Push(ci)
	}
}

// Sprite is the OAM entry data the sprite compositor needs, already resolved
// to screen coordinates (X/Y are pre-offset by -8/-16).
type Sprite struct {
	X, Y     int
	Tile     byte
	Attr     byte
	OAMIndex int
}

// ComposeSpriteLine renders sprite pixels for one scanline against a
// background color-index row, returning only the resulting color indices
// (0 = transparent / no sprite pixel here).
func ComposeSpriteLine(mem vramReader, sprites []Sprite, ly byte, bgci [160]byte, tall bool) [160]byte {
	ci, _ := ComposeSpriteLineExt(mem, sprites, ly, bgci, tall)
	return ci
}

// ComposeSpriteLineExt is ComposeSpriteLine plus the OBP register selection
// (0 or 1) chosen for each opaque pixel, resolving overlaps the way DMG
// hardware does: the sprite with the smallest X wins, ties broken by the
// lower OAM index.
func ComposeSpriteLineExt(mem vramReader, sprites []Sprite, ly byte, bgci [160]byte, tall bool) (ci [160]byte, pal [160]byte) {
	height := 8
	if tall {
		height = 16
	}
	const unset = 1 << 30
	winX := [160]int{}
	winOAM := [160]int{}
	for i := range winX {
		winX[i] = unset
		winOAM[i] = unset
	}
	for _, s := range sprites {
		row := int(ly) - s.Y
		if row < 0 || row >= height {
			continue
		}
		if s.Attr&0x40 != 0 { // Y flip
			row = height - 1 - row
		}
		tile := s.Tile
		if tall {
			tile &^= 1
			if row >= 8 {
				tile |= 1
				row -= 8
			}
		}
		base := uint16(0x8000) + uint16(tile)*16 + uint16(row)*2
		lo := mem.Read(base)
		hi := mem.Read(base + 1)
		xflip := s.Attr&0x20 != 0
		behindBG := s.Attr&0x80 != 0
		obpSel := byte(0)
		if s.Attr&0x10 != 0 {
			obpSel = 1
		}
		for col := 0; col < 8; col++ {
			screenX := s.X + col
			if screenX < 0 || screenX >= 160 {
				continue
			}
			bit := byte(7 - col)
			if xflip {
				bit = byte(col)
			}
			px := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if px == 0 {
				continue // transparent pixels never participate in priority
			}
			if behindBG && bgci[screenX] != 0 {
				continue
			}
			if s.X < winX[screenX] || (s.X == winX[screenX] && s.OAMIndex < winOAM[screenX]) {
				winX[screenX] = s.X
				winOAM[screenX] = s.OAMIndex
				ci[screenX] = px
				pal[screenX] = obpSel
			}
		}
	}
	return ci, pal
}

// RenderWindowScanlineUsingFetcher renders 160 window pixels starting at
// wxStart (WX-7), reusing the background fetcher against the window's own
// tilemap base and line counter. Columns before wxStart are left at 0.
func RenderWindowScanlineUsingFetcher(mem vramReader, mapBase uint16, tileData8000 bool, wxStart int, fineY byte) [160]byte {
	var out [160]byte
	if wxStart >= 160 {
		return out
	}
	discard := 0
	start := wxStart
	if start < 0 {
		discard = -start
		start = 0
	}

	var q fifo
	f := newBGFetcher(mem, &q)
	tileCol := uint16(0)
	f.Configure(mapBase, tileData8000, mapBase+tileCol, fineY)
	f.Fetch()
	for i := 0; i < discard; i++ {
		if q.Len() == 0 {
			tileCol++
			f.Configure(mapBase, tileData8000, mapBase+tileCol, fineY)
			f.Fetch()
		}
		_, _ = q.Pop()
	}
	for x := start; x < 160; x++ {
		if q.Len() == 0 {
			tileCol++
			f.Configure(mapBase, tileData8000, mapBase+tileCol, fineY)
			f.Fetch()
		}
		px, _ := q.Pop()
		out[x] = px
	}
	return out
}
