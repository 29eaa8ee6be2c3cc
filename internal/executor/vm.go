package executor

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/ghostkasd/ghostkasd/internal/chainspec"
	"github.com/ghostkasd/ghostkasd/internal/primitives"
	"github.com/ghostkasd/ghostkasd/internal/trie"
	"github.com/ghostkasd/ghostkasd/internal/types"
)

// Op is a single opcode in the minimal EVM-style interpreter ContractCall
// dispatch runs against — full smart-contract language semantics are out
// of scope, this is intentionally a minimal interpreter, not a full EVM.
// No opcode-interpreter reference exists anywhere in the retrieval pack
// (the reference codebase is UTXO/Script-based, and Script's stack
// machine has no storage/account-model analogue worth porting), so this is
// original code in the same small-stack-machine shape contracts generally
// take, reusing the module's own trie and uint256 stack already used
// elsewhere.
type Op byte

const (
	OpStop Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPush  // followed by one length byte then that many big-endian value bytes
	OpPop
	OpDup1
	OpSwap1
	OpMLoad
	OpMStore
	OpSLoad
	OpSStore
	OpCallDataLoad  // pushes a 32-byte word from the call payload at the popped offset
	OpCallDataSize
	OpCallValue
	OpCaller
	OpAddress
	OpJump
	OpJumpI
	OpJumpDest
	OpLog
	OpReturn
	OpRevert
)

const (
	maxStackDepth = 1024
	maxPC         = 1 << 20
)

// ErrExecutionReverted signals a REVERT opcode or any interpreter-level
// failure (stack underflow, bad jump target, out-of-gas): a failed receipt,
// not a block-admission error.
var ErrExecutionReverted = errors.New("contract execution reverted")

// vm is a single contract invocation's interpreter state: stack, linear
// memory, the gas meter, and a view into the invoked contract's storage
// trie (itself rooted at the account's StorageRoot, sharing the block's
// write view across every VM instance invoked within it).
type vm struct {
	code    []byte
	input   []byte
	value   *uint256.Int
	caller  primitives.Address
	address primitives.Address

	stack  []*uint256.Int
	memory []byte

	storage *trie.Trie
	gas     *gasMeter
	schedule chainspec.GasSchedule

	logs []types.Log
}

type gasMeter struct {
	remaining uint64
}

func (g *gasMeter) charge(amount uint64) error {
	if g.remaining < amount {
		return errors.New("out of gas")
	}
	g.remaining -= amount
	return nil
}

func (m *vm) push(v *uint256.Int) error {
	if len(m.stack) >= maxStackDepth {
		return errors.New("stack overflow")
	}
	m.stack = append(m.stack, v)
	return nil
}

func (m *vm) pop() (*uint256.Int, error) {
	if len(m.stack) == 0 {
		return nil, errors.New("stack underflow")
	}
	top := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return top, nil
}

func (m *vm) growMemory(offset, size uint64) {
	needed := offset + size
	if uint64(len(m.memory)) < needed {
		grown := make([]byte, needed)
		copy(grown, m.memory)
		m.memory = grown
	}
}

// run executes the contract's code to completion, returning its output
// bytes and logs, or ErrExecutionReverted on any failure (including REVERT,
// which additionally supplies the revert output).
func (m *vm) run() (output []byte, err error) {
	pc := 0
	for pc < len(m.code) {
		if pc > maxPC {
			return nil, errors.Wrap(ErrExecutionReverted, "program counter exceeded bound")
		}
		op := Op(m.code[pc])

		if err := m.gas.charge(opBaseCost(op, m.schedule)); err != nil {
			return nil, errors.Wrap(ErrExecutionReverted, err.Error())
		}

		switch op {
		case OpStop:
			return nil, nil

		case OpAdd, OpSub, OpMul, OpDiv, OpMod:
			b, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			a, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			result := new(uint256.Int)
			switch op {
			case OpAdd:
				result.Add(a, b)
			case OpSub:
				result.Sub(a, b)
			case OpMul:
				result.Mul(a, b)
			case OpDiv:
				if b.IsZero() {
					result.Clear()
				} else {
					result.Div(a, b)
				}
			case OpMod:
				if b.IsZero() {
					result.Clear()
				} else {
					result.Mod(a, b)
				}
			}
			if err := m.push(result); err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			pc++

		case OpPush:
			if pc+1 >= len(m.code) {
				return nil, errors.Wrap(ErrExecutionReverted, "truncated PUSH")
			}
			length := int(m.code[pc+1])
			start := pc + 2
			if start+length > len(m.code) {
				return nil, errors.Wrap(ErrExecutionReverted, "truncated PUSH operand")
			}
			if err := m.push(new(uint256.Int).SetBytes(m.code[start : start+length])); err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			pc = start + length

		case OpPop:
			if _, err := m.pop(); err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			pc++

		case OpDup1:
			if len(m.stack) == 0 {
				return nil, errors.Wrap(ErrExecutionReverted, "DUP1 on empty stack")
			}
			if err := m.push(new(uint256.Int).Set(m.stack[len(m.stack)-1])); err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			pc++

		case OpSwap1:
			if len(m.stack) < 2 {
				return nil, errors.Wrap(ErrExecutionReverted, "SWAP1 needs two stack items")
			}
			n := len(m.stack)
			m.stack[n-1], m.stack[n-2] = m.stack[n-2], m.stack[n-1]
			pc++

		case OpMLoad:
			offset, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			off := offset.Uint64()
			m.growMemory(off, 32)
			if err := m.push(new(uint256.Int).SetBytes(m.memory[off : off+32])); err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			pc++

		case OpMStore:
			offset, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			val, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			off := offset.Uint64()
			m.growMemory(off, 32)
			b := val.Bytes32()
			copy(m.memory[off:off+32], b[:])
			pc++

		case OpSLoad:
			slot, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			slotHash := primitives.Hash(slot.Bytes32())
			key := trie.StorageKey(slotHash)
			raw, err := m.storage.Get(key[:])
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			value := new(uint256.Int)
			if raw != nil {
				value.SetBytes(raw)
			}
			if err := m.push(value); err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			pc++

		case OpSStore:
			slot, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			val, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			slotHash := primitives.Hash(slot.Bytes32())
			key := trie.StorageKey(slotHash)
			if err := m.storage.Put(key[:], val.Bytes()); err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			pc++

		case OpCallDataLoad:
			offset, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			off := offset.Uint64()
			word := make([]byte, 32)
			if off < uint64(len(m.input)) {
				copy(word, m.input[off:])
			}
			if err := m.push(new(uint256.Int).SetBytes(word)); err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			pc++

		case OpCallDataSize:
			if err := m.push(new(uint256.Int).SetUint64(uint64(len(m.input)))); err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			pc++

		case OpCallValue:
			if err := m.push(new(uint256.Int).Set(m.value)); err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			pc++

		case OpCaller:
			if err := m.push(new(uint256.Int).SetBytes(m.caller[:])); err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			pc++

		case OpAddress:
			if err := m.push(new(uint256.Int).SetBytes(m.address[:])); err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			pc++

		case OpJumpDest:
			pc++

		case OpJump:
			dest, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			target := int(dest.Uint64())
			if target < 0 || target >= len(m.code) || Op(m.code[target]) != OpJumpDest {
				return nil, errors.Wrap(ErrExecutionReverted, "invalid jump destination")
			}
			pc = target

		case OpJumpI:
			dest, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			cond, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			if cond.IsZero() {
				pc++
				continue
			}
			target := int(dest.Uint64())
			if target < 0 || target >= len(m.code) || Op(m.code[target]) != OpJumpDest {
				return nil, errors.Wrap(ErrExecutionReverted, "invalid jump destination")
			}
			pc = target

		case OpLog:
			topicCount, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			n := int(topicCount.Uint64())
			if n > 4 {
				return nil, errors.Wrap(ErrExecutionReverted, "LOG supports at most 4 topics")
			}
			topics := make([]primitives.Hash, n)
			for i := 0; i < n; i++ {
				t, err := m.pop()
				if err != nil {
					return nil, errors.Wrap(ErrExecutionReverted, err.Error())
				}
				topics[i] = primitives.Hash(t.Bytes32())
			}
			offset, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			size, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			off, sz := offset.Uint64(), size.Uint64()
			m.growMemory(off, sz)
			data := append([]byte(nil), m.memory[off:off+sz]...)
			m.logs = append(m.logs, types.Log{Address: m.address, Topics: topics, Data: data})
			pc++

		case OpReturn:
			offset, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			size, err := m.pop()
			if err != nil {
				return nil, errors.Wrap(ErrExecutionReverted, err.Error())
			}
			off, sz := offset.Uint64(), size.Uint64()
			m.growMemory(off, sz)
			return append([]byte(nil), m.memory[off:off+sz]...), nil

		case OpRevert:
			offset, err := m.pop()
			if err != nil {
				return nil, ErrExecutionReverted
			}
			size, err := m.pop()
			if err != nil {
				return nil, ErrExecutionReverted
			}
			off, sz := offset.Uint64(), size.Uint64()
			m.growMemory(off, sz)
			return append([]byte(nil), m.memory[off:off+sz]...), ErrExecutionReverted

		default:
			return nil, errors.Wrapf(ErrExecutionReverted, "unknown opcode 0x%02x", byte(op))
		}
	}
	return nil, nil
}

// opBaseCost returns the flat gas cost of an opcode. Storage operations use
// the configured schedule; everything else is a small constant, a coarse
// approximation in place of full EVM gas metering.
func opBaseCost(op Op, schedule chainspec.GasSchedule) uint64 {
	switch op {
	case OpSStore:
		return schedule.SStoreGas
	case OpSLoad:
		return schedule.SLoadGas
	case OpPush:
		return 3
	default:
		return 3
	}
}
