package stream

import "fmt"

// swapRecords reverses the bytes of every multi-byte word in records that
// were written with byte order from. Length prefixes are swapped too;
// string and nested stream payloads are skipped.
func swapRecords(records []byte, from Endian) error {
	order := from.order()
	length := func(off int) (int, error) {
		if off+4 > len(records) {
			return 0, fmt.Errorf("%w: truncated length prefix", ErrCorrupt)
		}
		n := int(order.Uint32(records[off : off+4]))
		reverse(records[off : off+4])
		return n, nil
	}
	for off := 0; off < len(records); {
		k := kind(records[off])
		off++
		switch {
		case k.scalar():
			size := k.size()
			if off+size > len(records) {
				return fmt.Errorf("%w: truncated %s record", ErrCorrupt, k)
			}
			reverse(records[off : off+size])
			off += size
		case k&arrayFlag != 0 && (k &^ arrayFlag).scalar():
			size := (k &^ arrayFlag).size()
			n, err := length(off)
			if err != nil {
				return err
			}
			off += 4
			if n < 0 || off+n*size > len(records) {
				return fmt.Errorf("%w: truncated %s record", ErrCorrupt, k)
			}
			if size > 1 {
				for i := 0; i < n; i++ {
					reverse(records[off+i*size : off+(i+1)*size])
				}
			}
			off += n * size
		case k == kindString || k == kindStream:
			n, err := length(off)
			if err != nil {
				return err
			}
			off += 4 + n
			if n < 0 || off > len(records) {
				return fmt.Errorf("%w: truncated %s record", ErrCorrupt, k)
			}
		default:
			return fmt.Errorf("%w: unknown record %s", ErrCorrupt, k)
		}
	}
	return nil
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
