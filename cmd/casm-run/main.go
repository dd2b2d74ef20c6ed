// Command casm-run is a thin CLI front-end over the public
// casm-hintrunner package: it reads a hand-assembled instruction
// stream as JSON, runs it to completion, and prints the extracted
// return values. It contains no hint-processor logic of its own; the
// assembler and code generator that would normally produce this input
// are out of scope for this repository.
package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"gopkg.in/urfave/cli.v1"

	casmhintrunner "github.com/vybium/casm-hintrunner/pkg/casm-hintrunner"
)

var programFlag = cli.StringFlag{
	Name:  "program",
	Usage: "path to the program JSON file (defaults to stdin)",
}

// instructionDoc is the JSON shape a test harness or script hand-authors
// to describe one CASM instruction and the hints attached to it.
type instructionDoc struct {
	DstRegister string `json:"dst_register"`
	OffDst      int16  `json:"off_dst"`
	Op0Register string `json:"op0_register"`
	OffOp0      int16  `json:"off_op0"`
	Op1Src      string `json:"op1_src"`
	OffOp1      int16  `json:"off_op1"`
	Res         string `json:"res"`
	PcUpdate    string `json:"pc_update"`
	ApUpdate    string `json:"ap_update"`
	Opcode      string `json:"opcode"`
	Imm         string `json:"imm,omitempty"`
	Hints       []string `json:"hints,omitempty"`
}

// programDoc is the top-level input document.
type programDoc struct {
	Instructions []instructionDoc `json:"instructions"`
	Builtins     []string         `json:"builtins"`
	NReturns     int              `json:"n_returns"`
}

func main() {
	app := cli.NewApp()
	app.Name = "casm-run"
	app.Usage = "run a CASM instruction stream and print its return values"
	app.Flags = []cli.Flag{programFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fatal(err.Error())
	}
}

func run(ctx *cli.Context) error {
	var r *os.File
	if path := ctx.String(programFlag.Name); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening program file: %w", err)
		}
		defer f.Close()
		r = f
	} else {
		r = os.Stdin
	}

	var doc programDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("parsing program document: %w", err)
	}

	instructions, err := decodeInstructions(doc.Instructions)
	if err != nil {
		return fmt.Errorf("decoding instructions: %w", err)
	}

	values, err := casmhintrunner.RunAndTake(instructions, doc.Builtins, doc.NReturns)
	if err != nil {
		return fmt.Errorf("running program: %w", err)
	}

	for _, v := range values {
		fmt.Println(v.String())
	}
	return nil
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, "casm-run: "+msg)
	os.Exit(1)
}

func decodeInstructions(docs []instructionDoc) ([]casmhintrunner.Instruction, error) {
	out := make([]casmhintrunner.Instruction, len(docs))
	for i, d := range docs {
		body, err := decodeBody(d)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		hints, err := decodeHints(d.Hints)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		out[i] = casmhintrunner.Instruction{Body: body, Hints: hints}
	}
	return out, nil
}

func decodeBody(d instructionDoc) (casmhintrunner.InstructionBody, error) {
	dstReg, err := decodeRegister(d.DstRegister)
	if err != nil {
		return casmhintrunner.InstructionBody{}, err
	}
	op0Reg, err := decodeRegister(d.Op0Register)
	if err != nil {
		return casmhintrunner.InstructionBody{}, err
	}
	op1Src, err := decodeOp1Src(d.Op1Src)
	if err != nil {
		return casmhintrunner.InstructionBody{}, err
	}
	res, err := decodeRes(d.Res)
	if err != nil {
		return casmhintrunner.InstructionBody{}, err
	}
	pcUpdate, err := decodePcUpdate(d.PcUpdate)
	if err != nil {
		return casmhintrunner.InstructionBody{}, err
	}
	apUpdate, err := decodeApUpdate(d.ApUpdate)
	if err != nil {
		return casmhintrunner.InstructionBody{}, err
	}
	opcode, err := decodeOpcode(d.Opcode)
	if err != nil {
		return casmhintrunner.InstructionBody{}, err
	}

	body := casmhintrunner.InstructionBody{
		DstRegister: dstReg,
		OffDst:      d.OffDst,
		Op0Register: op0Reg,
		OffOp0:      d.OffOp0,
		Op1Src:      op1Src,
		OffOp1:      d.OffOp1,
		Res:         res,
		PcUpdate:    pcUpdate,
		ApUpdate:    apUpdate,
		Opcode:      opcode,
	}

	if op1Src == casmhintrunner.Op1SrcImm {
		if d.Imm == "" {
			return casmhintrunner.InstructionBody{}, fmt.Errorf("op1_src \"imm\" requires an \"imm\" field")
		}
		n, ok := new(big.Int).SetString(d.Imm, 10)
		if !ok {
			return casmhintrunner.InstructionBody{}, fmt.Errorf("malformed immediate literal %q", d.Imm)
		}
		body.Imm = casmhintrunner.NewFieldElement(n)
	}
	return body, nil
}

func decodeHints(codes []string) ([]casmhintrunner.Hint, error) {
	out := make([]casmhintrunner.Hint, len(codes))
	for i, code := range codes {
		h, err := casmhintrunner.DeserializeHint(code)
		if err != nil {
			return nil, fmt.Errorf("hint %d: %w", i, err)
		}
		out[i] = h
	}
	return out, nil
}

func decodeRegister(s string) (casmhintrunner.Register, error) {
	switch s {
	case "ap":
		return casmhintrunner.AP, nil
	case "fp":
		return casmhintrunner.FP, nil
	default:
		return 0, fmt.Errorf("unknown register %q", s)
	}
}

func decodeOp1Src(s string) (casmhintrunner.Op1Src, error) {
	switch s {
	case "op0":
		return casmhintrunner.Op1SrcOp0, nil
	case "imm":
		return casmhintrunner.Op1SrcImm, nil
	case "fp":
		return casmhintrunner.Op1SrcFP, nil
	case "ap":
		return casmhintrunner.Op1SrcAP, nil
	default:
		return 0, fmt.Errorf("unknown op1_src %q", s)
	}
}

func decodeRes(s string) (casmhintrunner.ResLogic, error) {
	switch s {
	case "unconstrained":
		return casmhintrunner.ResUnconstrained, nil
	case "op1":
		return casmhintrunner.ResOp1, nil
	case "add":
		return casmhintrunner.ResAdd, nil
	case "mul":
		return casmhintrunner.ResMul, nil
	default:
		return 0, fmt.Errorf("unknown res %q", s)
	}
}

func decodePcUpdate(s string) (casmhintrunner.PcUpdate, error) {
	switch s {
	case "regular":
		return casmhintrunner.PcNextInstr, nil
	case "jump":
		return casmhintrunner.PcJump, nil
	case "jump_rel":
		return casmhintrunner.PcJumpRel, nil
	case "jnz":
		return casmhintrunner.PcJnz, nil
	default:
		return 0, fmt.Errorf("unknown pc_update %q", s)
	}
}

func decodeApUpdate(s string) (casmhintrunner.ApUpdate, error) {
	switch s {
	case "regular":
		return casmhintrunner.ApRegular, nil
	case "add1":
		return casmhintrunner.ApAdd1, nil
	case "add2":
		return casmhintrunner.ApAdd2, nil
	case "add_res":
		return casmhintrunner.ApAddRes, nil
	default:
		return 0, fmt.Errorf("unknown ap_update %q", s)
	}
}

func decodeOpcode(s string) (casmhintrunner.Opcode, error) {
	switch s {
	case "nop":
		return casmhintrunner.OpNOp, nil
	case "assert_eq":
		return casmhintrunner.OpAssertEq, nil
	case "call":
		return casmhintrunner.OpCall, nil
	case "ret":
		return casmhintrunner.OpRet, nil
	default:
		return 0, fmt.Errorf("unknown opcode %q", s)
	}
}
