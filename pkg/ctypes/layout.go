package ctypes

// Resolver looks up the definition behind a named type. Typedefs resolve
// to their target, records to a Trecord and enums to their integer type.
// ok is false for unknown or incomplete types.
type Resolver interface {
	ResolveNamed(t Tnamed) (Type, bool)
}

// maxDepth bounds typedef chains so a cyclic typedef cannot loop forever.
const maxDepth = 64

// Sizeof returns the LP64 size of t in bytes. ok is false when the size
// depends on an incomplete or unknown type. r may be nil.
func Sizeof(t Type, r Resolver) (size int64, ok bool) {
	size, _, ok = layout(t, r, 0)
	return size, ok
}

// Alignof returns the LP64 alignment of t in bytes.
func Alignof(t Type, r Resolver) (align int64, ok bool) {
	_, align, ok = layout(t, r, 0)
	return align, ok
}

func layout(t Type, r Resolver, depth int) (size, align int64, ok bool) {
	if depth > maxDepth {
		return 0, 0, false
	}
	switch typ := t.(type) {
	case Tvoid:
		return 1, 1, true // GNU: sizeof(void) == 1
	case Tint:
		switch typ.Size {
		case I8, IBool:
			return 1, 1, true
		case I16:
			return 2, 2, true
		}
		return 4, 4, true
	case Tlong:
		return 8, 8, true
	case Tfloat:
		switch typ.Size {
		case F32:
			return 4, 4, true
		case F64:
			return 8, 8, true
		}
		return 16, 16, true
	case Tpointer:
		return 8, 8, true
	case Tqualified:
		return layout(typ.Elem, r, depth+1)
	case Tenum:
		return 4, 4, true
	case Tarray:
		if typ.Len != LenKnown {
			return 0, 0, false
		}
		sz, al, ok := layout(typ.Elem, r, depth+1)
		return typ.Size * sz, al, ok
	case Tfunction:
		return 0, 0, false
	case Trecord:
		return recordLayout(typ, r, depth)
	case Tnamed:
		if typ.Kind == KindTypedef {
			if prim, ok := WellKnown(typ.Name); ok {
				if r == nil {
					return layout(prim, r, depth+1)
				}
				if _, declared := r.ResolveNamed(typ); !declared {
					return layout(prim, r, depth+1)
				}
			}
		}
		if r == nil {
			return 0, 0, false
		}
		def, ok := r.ResolveNamed(typ)
		if !ok {
			return 0, 0, false
		}
		return layout(def, r, depth+1)
	}
	return 0, 0, false
}

// recordLayout lays out fields in declaration order with natural
// alignment. Bitfields share a storage unit of their declared type while
// they fit.
func recordLayout(rec Trecord, r Resolver, depth int) (size, align int64, ok bool) {
	align = 1
	var bits int64 // offset in bits
	for _, f := range rec.Fields {
		fsz, fal, ok := layout(f.Type, r, depth+1)
		if !ok {
			return 0, 0, false
		}
		if fal > align {
			align = fal
		}
		if rec.Union {
			if fsz*8 > bits {
				bits = fsz * 8
			}
			continue
		}
		if f.BitWidth >= 0 {
			unit := fsz * 8
			if f.BitWidth == 0 {
				bits = alignUp(bits, unit)
				continue
			}
			if bits%unit+int64(f.BitWidth) > unit {
				bits = alignUp(bits, unit)
			}
			bits += int64(f.BitWidth)
			continue
		}
		bits = alignUp(bits, fal*8)
		bits += fsz * 8
	}
	size = alignUp((bits+7)/8, align)
	return size, align, true
}

func alignUp(n, a int64) int64 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}
