// Package cru decodes the CRU (Common Readout Unit) frame header carried
// at the front of every arrived page, independent of the DMA engine that
// delivered it.
package cru

import "encoding/binary"

// HeaderSize is the CRU frame header's size in bytes: two 256-bit words.
const HeaderSize = 64

// wordSize is the size in bytes of one of the header's addressable
// 32-bit words, matching the original's memcpy-based getWord.
const wordSize = 4

func getWord(header []byte, index int) uint32 {
	off := index * wordSize
	return binary.LittleEndian.Uint32(header[off : off+wordSize])
}

// GetLinkID extracts the link ID from word 2, bits [8:15].
func GetLinkID(header []byte) uint8 {
	word := getWord(header, 2)
	return uint8((word >> 8) & 0xff)
}

// GetEventSize extracts the event size from word 3, bits [8:23].
func GetEventSize(header []byte) uint16 {
	word := getWord(header, 3)
	return uint16((word >> 8) & 0xffff)
}

// PutLinkID writes linkID into word 2, bits [8:15], leaving the rest of
// the word untouched. Used by tests.
func PutLinkID(header []byte, linkID uint8) {
	off := 2 * wordSize
	word := binary.LittleEndian.Uint32(header[off : off+wordSize])
	word = (word &^ (0xff << 8)) | (uint32(linkID) << 8)
	binary.LittleEndian.PutUint32(header[off:off+wordSize], word)
}

// PutEventSize writes size into word 3, bits [8:23].
func PutEventSize(header []byte, size uint16) {
	off := 3 * wordSize
	word := binary.LittleEndian.Uint32(header[off : off+wordSize])
	word = (word &^ (0xffff << 8)) | (uint32(size) << 8)
	binary.LittleEndian.PutUint32(header[off:off+wordSize], word)
}
