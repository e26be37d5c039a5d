package constexpr

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/raymyers/ralph-cdecl/pkg/cabs"
	"github.com/raymyers/ralph-cdecl/pkg/ctypes"
	"github.com/raymyers/ralph-cdecl/pkg/lexer"
)

// Context resolves identifiers (macros already expanded, enumerators,
// constants). A Context that also implements ctypes.Resolver lets sizeof
// and casts see through typedef names.
type Context interface {
	Lookup(name string) (Value, bool)
}

// Env is a Context backed by a map
type Env map[string]Value

// Lookup implements Context
func (e Env) Lookup(name string) (Value, bool) {
	v, ok := e[name]
	return v, ok
}

// Evaluate parses and evaluates tokens in ctx.
func Evaluate(toks []lexer.Token, ctx Context) (Value, error) {
	e, err := Parse(toks)
	if err != nil {
		return Value{}, err
	}
	return Eval(e, ctx)
}

// Eval evaluates an expression tree. Unknown identifiers give an error
// wrapping ErrUnresolved; signed overflow gives *OverflowError.
func Eval(e cabs.Expr, ctx Context) (Value, error) {
	ev := evaluator{ctx: ctx}
	v, err := ev.eval(e)
	var oe *OverflowError
	if errors.As(err, &oe) && oe.Expr == "" {
		oe.Expr = cabs.FormatExpr(e)
	}
	return v, err
}

type evaluator struct {
	ctx Context
}

func (ev evaluator) eval(e cabs.Expr) (Value, error) {
	switch e := e.(type) {
	case cabs.Constant:
		switch e.Kind {
		case cabs.ConstInt:
			return ParseInt(e.Text)
		case cabs.ConstChar:
			return CharValue(e.Text)
		}
		return Value{}, fmt.Errorf("%w: %s", ErrNotInteger, e.Text)
	case cabs.Variable:
		if ev.ctx != nil {
			if v, ok := ev.ctx.Lookup(e.Name); ok {
				return v, nil
			}
		}
		return Value{}, fmt.Errorf("%w: %s", ErrUnresolved, e.Name)
	case cabs.Paren:
		return ev.eval(e.Expr)
	case cabs.Unary:
		return ev.unary(e)
	case cabs.Binary:
		return ev.binary(e)
	case cabs.Conditional:
		cond, err := ev.eval(e.Cond)
		if err != nil {
			return Value{}, err
		}
		if !cond.IsZero() {
			return ev.eval(e.Then)
		}
		return ev.eval(e.Else)
	case cabs.Cast:
		v, err := ev.eval(e.Expr)
		if err != nil {
			return Value{}, err
		}
		return ev.cast(v, e.Type)
	case cabs.SizeofType:
		t, err := ev.typeOf(e.Type)
		if err != nil {
			return Value{}, err
		}
		size, ok := ctypes.Sizeof(t, ev.resolver())
		if !ok {
			return Value{}, fmt.Errorf("%w: sizeof(%s)", ErrUnresolved, e.Type)
		}
		return Uint(uint64(size)), nil
	case cabs.SizeofExpr, cabs.Call, cabs.Index:
		return Value{}, fmt.Errorf("%w: %s", ErrUnresolved, cabs.FormatExpr(e))
	}
	return Value{}, fmt.Errorf("cannot evaluate %T", e)
}

func (ev evaluator) resolver() ctypes.Resolver {
	if r, ok := ev.ctx.(ctypes.Resolver); ok {
		return r
	}
	return nil
}

// typeOf resolves the operand of a cast or sizeof
func (ev evaluator) typeOf(tn cabs.TypeName) (ctypes.Type, error) {
	var t ctypes.Type
	switch {
	case len(tn.Words) == 2 && (tn.Words[0] == "struct" || tn.Words[0] == "union" || tn.Words[0] == "enum"):
		kind := map[string]ctypes.NamedKind{"struct": ctypes.KindStruct, "union": ctypes.KindUnion, "enum": ctypes.KindEnum}[tn.Words[0]]
		t = ctypes.Tnamed{Kind: kind, Name: tn.Words[1]}
	case len(tn.Words) == 1 && !ctypes.IsPrimitiveWord(tn.Words[0]):
		t = ctypes.Tnamed{Kind: ctypes.KindTypedef, Name: tn.Words[0]}
	default:
		name, err := ctypes.CanonicalPrimitive(tn.Words)
		if err != nil {
			return nil, err
		}
		t, _ = ctypes.Primitive(name)
	}
	for i := 0; i < tn.Pointers; i++ {
		t = ctypes.Pointer(t)
	}
	return t, nil
}

// underlying follows typedef names down to a scalar type
func (ev evaluator) underlying(t ctypes.Type) (ctypes.Type, bool) {
	r := ev.resolver()
	for depth := 0; depth < 64; depth++ {
		t, _ = ctypes.Unqualified(t)
		named, ok := t.(ctypes.Tnamed)
		if !ok {
			return t, true
		}
		if named.Kind == ctypes.KindEnum {
			return ctypes.Int(), true
		}
		var def ctypes.Type
		found := false
		if r != nil {
			def, found = r.ResolveNamed(named)
		}
		if !found && named.Kind == ctypes.KindTypedef {
			def, found = ctypes.WellKnown(named.Name)
		}
		if !found {
			return nil, false
		}
		t = def
	}
	return nil, false
}

func (ev evaluator) cast(v Value, tn cabs.TypeName) (Value, error) {
	t, err := ev.typeOf(tn)
	if err != nil {
		return Value{}, err
	}
	u, ok := ev.underlying(t)
	if !ok {
		return Value{}, fmt.Errorf("%w: (%s)", ErrUnresolved, tn)
	}
	switch u := u.(type) {
	case ctypes.Tpointer:
		return Uint(v.Bits), nil
	case ctypes.Tlong:
		c := class{u.Sign == ctypes.Unsigned, RankLong}
		if u.LongLong {
			c.rank = RankLongLong
		}
		return convert(v, c), nil
	case ctypes.Tint:
		switch u.Size {
		case ctypes.IBool:
			return boolValue(!v.IsZero()), nil
		case ctypes.I8:
			if u.Sign == ctypes.Unsigned {
				return Int(int64(uint8(v.Bits))), nil
			}
			return Int(int64(int8(v.Bits))), nil
		case ctypes.I16:
			if u.Sign == ctypes.Unsigned {
				return Int(int64(uint16(v.Bits))), nil
			}
			return Int(int64(int16(v.Bits))), nil
		}
		return convert(v, class{u.Sign == ctypes.Unsigned, RankInt}), nil
	case ctypes.Tvoid:
		return v, nil
	}
	return Value{}, fmt.Errorf("%w: cast to %s", ErrNotInteger, tn)
}

func (ev evaluator) unary(e cabs.Unary) (Value, error) {
	v, err := ev.eval(e.Expr)
	if err != nil {
		return Value{}, err
	}
	switch e.Op {
	case cabs.OpPlus:
		return v, nil
	case cabs.OpNot:
		return boolValue(v.IsZero()), nil
	case cabs.OpNeg:
		return fit(new(big.Int).Neg(v.Big()), v.class(), "-")
	case cabs.OpBitNot:
		return fit(new(big.Int).Not(v.Big()), v.class(), "~")
	}
	return Value{}, fmt.Errorf("unknown unary operator %s", e.Op)
}

func (ev evaluator) binary(e cabs.Binary) (Value, error) {
	left, err := ev.eval(e.Left)
	if err != nil {
		return Value{}, err
	}
	switch e.Op {
	case cabs.OpAnd:
		if left.IsZero() {
			return boolValue(false), nil
		}
		right, err := ev.eval(e.Right)
		if err != nil {
			return Value{}, err
		}
		return boolValue(!right.IsZero()), nil
	case cabs.OpOr:
		if !left.IsZero() {
			return boolValue(true), nil
		}
		right, err := ev.eval(e.Right)
		if err != nil {
			return Value{}, err
		}
		return boolValue(!right.IsZero()), nil
	case cabs.OpComma:
		return ev.eval(e.Right)
	}

	right, err := ev.eval(e.Right)
	if err != nil {
		return Value{}, err
	}
	op := e.Op.String()

	if e.Op == cabs.OpShl || e.Op == cabs.OpShr {
		return shift(left, right, e.Op)
	}

	c := common(left.class(), right.class())
	l, r := convert(left, c).Big(), convert(right, c).Big()
	x := new(big.Int)
	switch e.Op {
	case cabs.OpAdd:
		x.Add(l, r)
	case cabs.OpSub:
		x.Sub(l, r)
	case cabs.OpMul:
		x.Mul(l, r)
	case cabs.OpDiv, cabs.OpMod:
		if r.Sign() == 0 {
			return Value{}, ErrDivideByZero
		}
		// C truncates toward zero, as Quo and Rem do
		if e.Op == cabs.OpDiv {
			x.Quo(l, r)
		} else {
			x.Rem(l, r)
		}
	case cabs.OpBitAnd:
		x.And(l, r)
	case cabs.OpBitOr:
		x.Or(l, r)
	case cabs.OpBitXor:
		x.Xor(l, r)
	case cabs.OpLt:
		return boolValue(l.Cmp(r) < 0), nil
	case cabs.OpLe:
		return boolValue(l.Cmp(r) <= 0), nil
	case cabs.OpGt:
		return boolValue(l.Cmp(r) > 0), nil
	case cabs.OpGe:
		return boolValue(l.Cmp(r) >= 0), nil
	case cabs.OpEq:
		return boolValue(l.Cmp(r) == 0), nil
	case cabs.OpNe:
		return boolValue(l.Cmp(r) != 0), nil
	default:
		return Value{}, fmt.Errorf("unknown binary operator %s", op)
	}
	return fit(x, c, op)
}

// shift applies << or >>. The result has the type of the left operand.
func shift(left, right Value, op cabs.BinaryOp) (Value, error) {
	n := right.Big()
	width := int64(left.Rank.bits())
	if n.Sign() < 0 || n.Cmp(big.NewInt(width)) >= 0 {
		if left.Rank == RankInt && !left.Unsigned && n.Sign() >= 0 && n.Cmp(big.NewInt(64)) < 0 {
			// int operands are evaluated in 64 bits: 1 << 40 widens to long
			width = 64
		} else {
			return Value{}, &OverflowError{Op: op.String(), Expr: fmt.Sprintf("shift count %s", n)}
		}
	}
	x := left.Big()
	if op == cabs.OpShl {
		x.Lsh(x, uint(n.Uint64()))
	} else {
		x.Rsh(x, uint(n.Uint64()))
	}
	return fit(x, left.class(), op.String())
}
