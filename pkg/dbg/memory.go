package dbg

import "fmt"

// maxConsecutiveFaults bounds how many back-to-back word-read failures
// ReadMemory tolerates before giving up (spec §4.5 "Read Memory").
const maxConsecutiveFaults = 8

// ReadMemory copies size bytes starting at addr out of the target's address
// space, word by word, using whichever attached thread is already stopped
// (or briefly stopping the whole fleet if none is). A word that faults is
// filled with zero and reading continues, up to maxConsecutiveFaults
// consecutive failures (spec §4.5 "Read Memory").
func (d *Debugger) ReadMemory(addr uint64, size int) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}
	var out []byte
	err := d.enqueue(func() error {
		_, alreadyStopped := d.anyStoppedThread()
		if alreadyStopped {
			out = d.readMemoryWords(addr, size)
			return nil
		}
		d.withStoppedWorld(0, func() {
			out = d.readMemoryWords(addr, size)
		})
		return nil
	})
	return out, err
}

func (d *Debugger) readMemoryWords(addr uint64, size int) []byte {
	buf := make([]byte, size)
	start := addr &^ 7
	end := (addr + uint64(size) + 7) &^ 7
	consecutiveFaults := 0
	for wordAddr := start; wordAddr < end; wordAddr += 8 {
		var wordBytes [8]byte
		if cached, ok := d.memCache.Get(wordAddr); ok {
			wordBytes = cached.([8]byte)
		} else {
			word, err := d.backend.PeekWord(wordAddr)
			if err != nil {
				consecutiveFaults++
				if consecutiveFaults > maxConsecutiveFaults {
					break
				}
				continue
			}
			consecutiveFaults = 0
			wordBytes = wordToBytes(word)
			d.memCache.Add(wordAddr, wordBytes)
		}
		for i := 0; i < 8; i++ {
			off := int64(wordAddr+uint64(i)) - int64(addr)
			if off >= 0 && off < int64(size) {
				buf[off] = wordBytes[i]
			}
		}
	}
	return buf
}

// InvalidateMemoryCache drops cached words overlapping [addr, addr+size),
// called after any write to the target's address space (software
// breakpoint patch/unpatch, WriteMemory) so stale bytes are never served.
func (d *Debugger) InvalidateMemoryCache(addr uint64, size int) {
	start := addr &^ 7
	end := (addr + uint64(size) + 7) &^ 7
	for wordAddr := start; wordAddr < end; wordAddr += 8 {
		d.memCache.Remove(wordAddr)
	}
}

// WriteMemory pokes data into the target's address space starting at addr,
// merging partial leading/trailing words so bytes outside the requested
// range are preserved.
func (d *Debugger) WriteMemory(addr uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return d.enqueue(func() error {
		var writeErr error
		fn := func() {
			start := addr &^ 7
			end := (addr + uint64(len(data)) + 7) &^ 7
			for wordAddr := start; wordAddr < end; wordAddr += 8 {
				word, err := d.backend.PeekWord(wordAddr)
				if err != nil {
					writeErr = fmt.Errorf("reading word at %#x: %w", wordAddr, err)
					return
				}
				buf := wordToBytes(word)
				for i := 0; i < 8; i++ {
					off := int64(wordAddr+uint64(i)) - int64(addr)
					if off >= 0 && off < int64(len(data)) {
						buf[i] = data[off]
					}
				}
				if err := d.backend.PokeWord(wordAddr, bytesToWord(buf)); err != nil {
					writeErr = fmt.Errorf("writing word at %#x: %w", wordAddr, err)
					return
				}
			}
		}
		if _, alreadyStopped := d.anyStoppedThread(); alreadyStopped {
			fn()
		} else {
			d.withStoppedWorld(0, fn)
		}
		if writeErr == nil {
			d.InvalidateMemoryCache(addr, len(data))
		}
		return writeErr
	})
}
