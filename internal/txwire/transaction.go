package txwire

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// AccountMeta describes one account an instruction touches.
type AccountMeta struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction is one program invocation within a transaction.
type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// SystemTransfer builds a native transfer of lamports between wallets.
func SystemTransfer(from, to Pubkey, lamports uint64) Instruction {
	// System program instruction index 2 (u32 LE) + lamports (u64 LE).
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], 2)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: to, IsSigner: false, IsWritable: true},
		},
		Data: data,
	}
}

// SystemCreateAccount builds the system instruction that allocates a
// new account. Fails on-chain with "already in use" when the address
// holds an account, which is how pool key collisions surface.
func SystemCreateAccount(from, newAccount Pubkey, lamports, space uint64, owner Pubkey) Instruction {
	// System program instruction index 0 (u32 LE) + lamports (u64 LE) +
	// space (u64 LE) + owner (32 bytes).
	data := make([]byte, 52)
	binary.LittleEndian.PutUint32(data[0:4], 0)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	binary.LittleEndian.PutUint64(data[12:20], space)
	copy(data[20:52], owner[:])

	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: newAccount, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}

// Transaction is an unsigned or signed legacy transaction.
type Transaction struct {
	Instructions         []Instruction
	FeePayer             Pubkey
	RecentBlockhash      string
	LastValidBlockHeight uint64

	signatures [][]byte
	message    []byte
	signerKeys []Pubkey
}

// compiledAccount is an account key with merged signer/writable flags.
type compiledAccount struct {
	pubkey     Pubkey
	isSigner   bool
	isWritable bool
}

// CompileMessage produces the canonical message bytes: fee payer first,
// then writable signers, read-only signers, writable non-signers and
// read-only non-signers, followed by the blockhash and the compiled
// instructions. Must be called after RecentBlockhash is set.
func (tx *Transaction) CompileMessage() ([]byte, error) {
	if tx.RecentBlockhash == "" {
		return nil, fmt.Errorf("compile message: missing recent blockhash")
	}
	blockhash, err := base58.Decode(tx.RecentBlockhash)
	if err != nil || len(blockhash) != 32 {
		return nil, fmt.Errorf("compile message: bad blockhash %q", tx.RecentBlockhash)
	}

	accounts := tx.collectAccounts()
	index := make(map[Pubkey]int, len(accounts))
	for i, a := range accounts {
		index[a.pubkey] = i
	}

	var numRequiredSignatures, numReadonlySigned, numReadonlyUnsigned byte
	for _, a := range accounts {
		if a.isSigner {
			numRequiredSignatures++
			if !a.isWritable {
				numReadonlySigned++
			}
		} else if !a.isWritable {
			numReadonlyUnsigned++
		}
	}

	var buf bytes.Buffer
	buf.Write([]byte{numRequiredSignatures, numReadonlySigned, numReadonlyUnsigned})

	writeCompactU16(&buf, len(accounts))
	for _, a := range accounts {
		buf.Write(a.pubkey[:])
	}

	buf.Write(blockhash)

	writeCompactU16(&buf, len(tx.Instructions))
	for _, ins := range tx.Instructions {
		programIdx, ok := index[ins.ProgramID]
		if !ok {
			return nil, fmt.Errorf("compile message: program id %s not collected", ins.ProgramID)
		}
		buf.WriteByte(byte(programIdx))

		writeCompactU16(&buf, len(ins.Accounts))
		for _, meta := range ins.Accounts {
			buf.WriteByte(byte(index[meta.Pubkey]))
		}

		writeCompactU16(&buf, len(ins.Data))
		buf.Write(ins.Data)
	}

	tx.message = buf.Bytes()
	tx.signerKeys = tx.signerKeys[:0]
	for _, a := range accounts {
		if a.isSigner {
			tx.signerKeys = append(tx.signerKeys, a.pubkey)
		}
	}
	return tx.message, nil
}

// collectAccounts merges duplicate account references and orders them
// fee payer first, then by signer/writable class.
func (tx *Transaction) collectAccounts() []compiledAccount {
	merged := make(map[Pubkey]*compiledAccount)
	var order []Pubkey

	add := func(pk Pubkey, signer, writable bool) {
		a, ok := merged[pk]
		if !ok {
			a = &compiledAccount{pubkey: pk}
			merged[pk] = a
			order = append(order, pk)
		}
		a.isSigner = a.isSigner || signer
		a.isWritable = a.isWritable || writable
	}

	add(tx.FeePayer, true, true)
	for _, ins := range tx.Instructions {
		for _, meta := range ins.Accounts {
			add(meta.Pubkey, meta.IsSigner, meta.IsWritable)
		}
		add(ins.ProgramID, false, false)
	}

	classOf := func(a *compiledAccount) int {
		switch {
		case a.pubkey == tx.FeePayer:
			return 0
		case a.isSigner && a.isWritable:
			return 1
		case a.isSigner:
			return 2
		case a.isWritable:
			return 3
		default:
			return 4
		}
	}

	result := make([]compiledAccount, 0, len(order))
	for class := 0; class <= 4; class++ {
		for _, pk := range order {
			a := merged[pk]
			if classOf(a) == class {
				result = append(result, *a)
			}
		}
	}
	return result
}

// Sign compiles the message and signs it with every required signer.
// Signer order must cover the message's signer set exactly.
func (tx *Transaction) Sign(signers ...*Keypair) error {
	message, err := tx.CompileMessage()
	if err != nil {
		return err
	}

	byPubkey := make(map[Pubkey]*Keypair, len(signers))
	for _, s := range signers {
		byPubkey[s.Pubkey()] = s
	}

	tx.signatures = tx.signatures[:0]
	for _, pk := range tx.signerKeys {
		kp, ok := byPubkey[pk]
		if !ok {
			return fmt.Errorf("sign: missing keypair for required signer %s", pk)
		}
		tx.signatures = append(tx.signatures, kp.Sign(message))
	}
	return nil
}

// Serialize returns the signed wire bytes: compact signature array
// followed by the message.
func (tx *Transaction) Serialize() ([]byte, error) {
	if len(tx.signatures) == 0 {
		return nil, fmt.Errorf("serialize: transaction not signed")
	}

	var buf bytes.Buffer
	writeCompactU16(&buf, len(tx.signatures))
	for _, sig := range tx.signatures {
		buf.Write(sig)
	}
	buf.Write(tx.message)
	return buf.Bytes(), nil
}

// SerializeBase64 returns the wire bytes base64-encoded for sendTransaction.
func (tx *Transaction) SerializeBase64() (string, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Signature returns the base58 transaction signature (the fee payer's),
// which doubles as the transaction hash.
func (tx *Transaction) Signature() string {
	if len(tx.signatures) == 0 {
		return ""
	}
	return base58.Encode(tx.signatures[0])
}

// writeCompactU16 writes the shortvec length encoding.
func writeCompactU16(buf *bytes.Buffer, n int) {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}
