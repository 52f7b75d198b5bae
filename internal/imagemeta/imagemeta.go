package imagemeta

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Payload carries the raw embedded-metadata blocks extracted from a
// source image. EXIF is the TIFF payload without the "Exif\0\0" prefix,
// ICC the raw profile, XMP the raw packet.
type Payload struct {
	EXIF []byte
	ICC  []byte
	XMP  []byte
}

// Empty reports whether no metadata block is present.
func (p *Payload) Empty() bool {
	return p == nil || (len(p.EXIF) == 0 && len(p.ICC) == 0 && len(p.XMP) == 0)
}

// Tags lists the detected block names in fixed order.
func (p *Payload) Tags() []string {
	if p == nil {
		return nil
	}
	var tags []string
	if len(p.EXIF) > 0 {
		tags = append(tags, "EXIF")
	}
	if len(p.ICC) > 0 {
		tags = append(tags, "ICC")
	}
	if len(p.XMP) > 0 {
		tags = append(tags, "XMP")
	}
	return tags
}

const (
	xmpNamespace = "http://ns.adobe.com/xap/1.0/"
	xmpPNGKey    = "XML:com.adobe.xmp"
)

// Extract sniffs the container format by magic bytes and pulls out any
// EXIF/ICC/XMP blocks. Unknown containers yield an empty payload, never
// an error: metadata is best-effort by design.
func Extract(data []byte) *Payload {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return extractJPEG(data)
	case len(data) >= 8 && bytes.HasPrefix(data, pngSignature):
		return extractPNG(data)
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return extractWebP(data)
	default:
		return &Payload{}
	}
}

// Embed re-attaches the payload blocks to freshly encoded bytes. The
// output dimensions and alpha flag are needed for the WebP extended
// header. Blocks a format cannot carry are silently skipped.
func Embed(encoded []byte, format string, p *Payload, width, height int, hasAlpha bool) ([]byte, error) {
	if p.Empty() {
		return encoded, nil
	}
	switch format {
	case "jpg", "jpeg":
		return embedJPEG(encoded, p)
	case "png":
		return embedPNG(encoded, p)
	case "webp":
		return embedWebP(encoded, p, width, height, hasAlpha)
	default:
		return encoded, nil
	}
}

// ---- JPEG ----

func extractJPEG(data []byte) *Payload {
	payload := &Payload{}
	var iccChunks [][]byte

	offset := 2 // past SOI
	for offset+4 <= len(data) {
		if data[offset] != 0xFF {
			break
		}
		marker := data[offset+1]
		if marker == 0xDA || marker == 0xD9 { // SOS / EOI: entropy data follows
			break
		}
		if marker == 0xFF { // fill byte
			offset++
			continue
		}
		segLen := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		if segLen < 2 || offset+2+segLen > len(data) {
			break
		}
		body := data[offset+4 : offset+2+segLen]

		switch marker {
		case 0xE1: // APP1: Exif or XMP
			if bytes.HasPrefix(body, []byte("Exif\x00\x00")) {
				payload.EXIF = body[6:]
			} else if bytes.HasPrefix(body, []byte(xmpNamespace+"\x00")) {
				payload.XMP = body[len(xmpNamespace)+1:]
			}
		case 0xE2: // APP2: ICC profile, possibly split across segments
			if bytes.HasPrefix(body, []byte("ICC_PROFILE\x00")) && len(body) > 14 {
				iccChunks = append(iccChunks, body[14:])
			}
		}
		offset += 2 + segLen
	}

	if len(iccChunks) > 0 {
		payload.ICC = bytes.Join(iccChunks, nil)
	}
	return payload
}

// jpegICCChunkSize is the ICC data budget per APP2 segment: 65535 minus
// the length field and the 14-byte ICC_PROFILE header.
const jpegICCChunkSize = 65535 - 2 - 14

func embedJPEG(encoded []byte, p *Payload) ([]byte, error) {
	if len(encoded) < 2 || encoded[0] != 0xFF || encoded[1] != 0xD8 {
		return nil, fmt.Errorf("embed jpeg: not a JPEG stream")
	}

	// Keep any APP0 (JFIF) segment ahead of the inserted metadata.
	insertAt := 2
	if len(encoded) >= 4 && encoded[2] == 0xFF && encoded[3] == 0xE0 {
		segLen := int(binary.BigEndian.Uint16(encoded[4:6]))
		if 4+segLen <= len(encoded) {
			insertAt = 4 + segLen
		}
	}

	var segments bytes.Buffer
	if len(p.EXIF) > 0 {
		writeJPEGSegment(&segments, 0xE1, append([]byte("Exif\x00\x00"), p.EXIF...))
	}
	if len(p.XMP) > 0 {
		writeJPEGSegment(&segments, 0xE1, append([]byte(xmpNamespace+"\x00"), p.XMP...))
	}
	if len(p.ICC) > 0 {
		total := (len(p.ICC) + jpegICCChunkSize - 1) / jpegICCChunkSize
		if total > 255 {
			return nil, fmt.Errorf("embed jpeg: ICC profile too large (%d bytes)", len(p.ICC))
		}
		for i := 0; i < total; i++ {
			start := i * jpegICCChunkSize
			end := min(start+jpegICCChunkSize, len(p.ICC))
			body := append([]byte("ICC_PROFILE\x00"), byte(i+1), byte(total))
			body = append(body, p.ICC[start:end]...)
			writeJPEGSegment(&segments, 0xE2, body)
		}
	}

	out := make([]byte, 0, len(encoded)+segments.Len())
	out = append(out, encoded[:insertAt]...)
	out = append(out, segments.Bytes()...)
	out = append(out, encoded[insertAt:]...)
	return out, nil
}

func writeJPEGSegment(w *bytes.Buffer, marker byte, body []byte) {
	w.WriteByte(0xFF)
	w.WriteByte(marker)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(body)+2))
	w.Write(lenBuf[:])
	w.Write(body)
}

// ---- PNG ----

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func extractPNG(data []byte) *Payload {
	payload := &Payload{}
	offset := len(pngSignature)
	for offset+8 <= len(data) {
		chunkLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		chunkType := string(data[offset+4 : offset+8])
		bodyStart := offset + 8
		if bodyStart+chunkLen+4 > len(data) {
			break
		}
		body := data[bodyStart : bodyStart+chunkLen]

		switch chunkType {
		case "eXIf":
			payload.EXIF = body
		case "iCCP":
			if profile := decodePNGProfile(body); profile != nil {
				payload.ICC = profile
			}
		case "iTXt":
			if key, text := decodePNGIntlText(body); key == xmpPNGKey {
				payload.XMP = text
			}
		case "IEND":
			return payload
		}
		offset = bodyStart + chunkLen + 4 // skip CRC
	}
	return payload
}

// decodePNGProfile unpacks an iCCP chunk: name, NUL, method, zlib data.
func decodePNGProfile(body []byte) []byte {
	nul := bytes.IndexByte(body, 0)
	if nul < 0 || nul+2 > len(body) || body[nul+1] != 0 {
		return nil
	}
	reader, err := zlib.NewReader(bytes.NewReader(body[nul+2:]))
	if err != nil {
		return nil
	}
	defer reader.Close()
	profile, err := io.ReadAll(reader)
	if err != nil {
		return nil
	}
	return profile
}

// decodePNGIntlText unpacks an uncompressed iTXt chunk keyword and text.
func decodePNGIntlText(body []byte) (string, []byte) {
	nul := bytes.IndexByte(body, 0)
	if nul < 0 || nul+2 > len(body) {
		return "", nil
	}
	key := string(body[:nul])
	if body[nul+1] != 0 { // compressed text not used for XMP
		return "", nil
	}
	// skip compression method, language tag, translated keyword
	rest := body[nul+3:]
	for i := 0; i < 2; i++ {
		idx := bytes.IndexByte(rest, 0)
		if idx < 0 {
			return "", nil
		}
		rest = rest[idx+1:]
	}
	return key, rest
}

func embedPNG(encoded []byte, p *Payload) ([]byte, error) {
	if !bytes.HasPrefix(encoded, pngSignature) {
		return nil, fmt.Errorf("embed png: not a PNG stream")
	}
	if len(encoded) < len(pngSignature)+8 {
		return nil, fmt.Errorf("embed png: truncated stream")
	}
	// Insert right after IHDR (length 13 + 12 bytes of framing).
	ihdrLen := int(binary.BigEndian.Uint32(encoded[8:12]))
	insertAt := len(pngSignature) + 8 + ihdrLen + 4

	var chunks bytes.Buffer
	if len(p.EXIF) > 0 {
		writePNGChunk(&chunks, "eXIf", p.EXIF)
	}
	if len(p.ICC) > 0 {
		var compressed bytes.Buffer
		zw := zlib.NewWriter(&compressed)
		if _, err := zw.Write(p.ICC); err != nil {
			return nil, fmt.Errorf("embed png: compress ICC: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("embed png: compress ICC: %w", err)
		}
		body := append([]byte("icc\x00\x00"), compressed.Bytes()...)
		writePNGChunk(&chunks, "iCCP", body)
	}
	if len(p.XMP) > 0 {
		body := append([]byte(xmpPNGKey), 0, 0, 0)
		body = append(body, 0, 0) // empty language tag and translated keyword
		body = append(body, p.XMP...)
		writePNGChunk(&chunks, "iTXt", body)
	}

	out := make([]byte, 0, len(encoded)+chunks.Len())
	out = append(out, encoded[:insertAt]...)
	out = append(out, chunks.Bytes()...)
	out = append(out, encoded[insertAt:]...)
	return out, nil
}

func writePNGChunk(w *bytes.Buffer, chunkType string, body []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	w.Write(lenBuf[:])
	w.WriteString(chunkType)
	w.Write(body)
	crc := crc32.NewIEEE()
	crc.Write([]byte(chunkType))
	crc.Write(body)
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc.Sum32())
	w.Write(crcBuf[:])
}

// ---- WebP ----

// VP8X flag bits
const (
	webpFlagICC   = 0x20
	webpFlagAlpha = 0x10
	webpFlagEXIF  = 0x08
	webpFlagXMP   = 0x04
)

func extractWebP(data []byte) *Payload {
	payload := &Payload{}
	offset := 12
	for offset+8 <= len(data) {
		chunkType := string(data[offset : offset+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		bodyStart := offset + 8
		if bodyStart+chunkLen > len(data) {
			break
		}
		body := data[bodyStart : bodyStart+chunkLen]

		switch chunkType {
		case "EXIF":
			// some writers include the JPEG-style prefix here
			payload.EXIF = bytes.TrimPrefix(body, []byte("Exif\x00\x00"))
		case "ICCP":
			payload.ICC = body
		case "XMP ":
			payload.XMP = body
		}
		offset = bodyStart + chunkLen + (chunkLen & 1) // chunks are even-padded
	}
	return payload
}

// embedWebP rebuilds the RIFF container in extended (VP8X) layout with
// the metadata chunks in spec order: VP8X, ICCP, image data, EXIF, XMP.
func embedWebP(encoded []byte, p *Payload, width, height int, hasAlpha bool) ([]byte, error) {
	if len(encoded) < 12 || !bytes.Equal(encoded[0:4], []byte("RIFF")) || !bytes.Equal(encoded[8:12], []byte("WEBP")) {
		return nil, fmt.Errorf("embed webp: not a WebP stream")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("embed webp: invalid canvas %dx%d", width, height)
	}

	// Collect existing chunks, dropping any VP8X/metadata we will rewrite.
	var imageChunks bytes.Buffer
	flags := byte(0)
	offset := 12
	for offset+8 <= len(encoded) {
		chunkType := string(encoded[offset : offset+4])
		chunkLen := int(binary.LittleEndian.Uint32(encoded[offset+4 : offset+8]))
		end := offset + 8 + chunkLen + (chunkLen & 1)
		if end > len(encoded) {
			end = len(encoded)
		}
		switch chunkType {
		case "VP8X", "EXIF", "ICCP", "XMP ":
			// rebuilt below
		case "ALPH":
			flags |= webpFlagAlpha
			imageChunks.Write(encoded[offset:end])
		default:
			imageChunks.Write(encoded[offset:end])
		}
		offset = end
	}
	if hasAlpha {
		flags |= webpFlagAlpha
	}
	if len(p.ICC) > 0 {
		flags |= webpFlagICC
	}
	if len(p.EXIF) > 0 {
		flags |= webpFlagEXIF
	}
	if len(p.XMP) > 0 {
		flags |= webpFlagXMP
	}

	var content bytes.Buffer
	vp8x := make([]byte, 10)
	vp8x[0] = flags
	putUint24(vp8x[4:7], uint32(width-1))
	putUint24(vp8x[7:10], uint32(height-1))
	writeWebPChunk(&content, "VP8X", vp8x)
	if len(p.ICC) > 0 {
		writeWebPChunk(&content, "ICCP", p.ICC)
	}
	content.Write(imageChunks.Bytes())
	if len(p.EXIF) > 0 {
		writeWebPChunk(&content, "EXIF", p.EXIF)
	}
	if len(p.XMP) > 0 {
		writeWebPChunk(&content, "XMP ", p.XMP)
	}

	out := &bytes.Buffer{}
	out.WriteString("RIFF")
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(4+content.Len()))
	out.Write(sizeBuf[:])
	out.WriteString("WEBP")
	out.Write(content.Bytes())
	return out.Bytes(), nil
}

func writeWebPChunk(w *bytes.Buffer, chunkType string, body []byte) {
	w.WriteString(chunkType)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	w.Write(lenBuf[:])
	w.Write(body)
	if len(body)%2 == 1 {
		w.WriteByte(0)
	}
}

func putUint24(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
}
