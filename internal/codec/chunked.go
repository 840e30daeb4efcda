package codec

import (
	"bytes"
	"strconv"
)

// scanChunks returns the length of the complete chunked body at the start of
// buf, including the terminating zero-size chunk and its empty trailer
// section, or 0 when more data is needed. Nothing is carried between calls:
// every call walks buf from offset 0.
func scanChunks(buf []byte, maxBody int) (int, error) {
	pos, total := 0, 0
	for pos < len(buf) {
		lineEnd := bytes.Index(buf[pos:], crlf)
		if lineEnd == -1 {
			return 0, nil
		}
		size, err := parseChunkSize(buf[pos : pos+lineEnd])
		if err != nil {
			return 0, err
		}
		dataStart := pos + lineEnd + len(crlf)

		if size == 0 {
			if len(buf) < dataStart+len(crlf) {
				return 0, nil
			}
			if !bytes.Equal(buf[dataStart:dataStart+len(crlf)], crlf) {
				return 0, malformed(400, "chunked trailers are not supported")
			}
			return dataStart + len(crlf), nil
		}

		if size > uint64(maxBody-total) {
			return 0, tooLarge(413, "request body exceeds %d bytes", maxBody)
		}
		chunkEnd := dataStart + int(size) + len(crlf)
		if chunkEnd > len(buf) {
			return 0, nil
		}
		if !bytes.Equal(buf[chunkEnd-len(crlf):chunkEnd], crlf) {
			return 0, malformed(400, "chunk data not terminated by CRLF")
		}
		total += int(size)
		pos = chunkEnd
	}
	return 0, nil
}

// decodeChunks concatenates the payload of every chunk in a frame that
// scanChunks has already accepted, stopping at the zero-size chunk.
func decodeChunks(frame []byte) ([]byte, error) {
	var body []byte
	pos := 0
	for pos < len(frame) {
		lineEnd := bytes.Index(frame[pos:], crlf)
		if lineEnd == -1 {
			break
		}
		size, err := parseChunkSize(frame[pos : pos+lineEnd])
		if err != nil {
			return nil, err
		}
		if size == 0 {
			break
		}
		dataStart := pos + lineEnd + len(crlf)
		dataEnd := dataStart + int(size)
		if dataEnd > len(frame) {
			return nil, malformed(400, "truncated chunk")
		}
		body = append(body, frame[dataStart:dataEnd]...)
		pos = dataEnd + len(crlf)
	}
	if body == nil {
		body = []byte{}
	}
	return body, nil
}

// parseChunkSize parses a chunk-size line, ignoring chunk extensions.
func parseChunkSize(line []byte) (uint64, error) {
	if semi := bytes.IndexByte(line, ';'); semi != -1 {
		line = line[:semi]
	}
	line = trimOWS(line)
	if len(line) == 0 {
		return 0, malformed(400, "empty chunk size")
	}
	size, err := strconv.ParseUint(string(line), 16, 62)
	if err != nil {
		e := malformed(400, "invalid chunk size")
		e.Err = err
		return 0, e
	}
	return size, nil
}
