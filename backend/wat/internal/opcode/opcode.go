// Package opcode maps instruction mnemonics to their binary encoding.
package opcode

// Imm describes the immediates that follow an opcode.
type Imm int

const (
	ImmNone Imm = iota
	ImmLocal
	ImmGlobal
	ImmFunc
	ImmLabel
	ImmBrTable
	ImmCallIndirect
	ImmBlock
	ImmI32
	ImmI64
	ImmF32
	ImmF64
	ImmMemarg
	ImmMemory // memory.size and memory.grow
)

// PrefixMisc introduces the saturating truncation opcodes.
const PrefixMisc byte = 0xfc

// Op is the encoding of one instruction.
type Op struct {
	Code  byte
	Imm   Imm
	Sub   uint32 // sub opcode when Code is PrefixMisc
	Align uint32 // natural alignment exponent of memory instructions
}

// Structured control instructions handled by the parser itself.
const (
	Block byte = 0x02
	Loop  byte = 0x03
	If    byte = 0x04
	Else  byte = 0x05
	End   byte = 0x0b

	I32Const byte = 0x41
)

// Lookup returns the encoding for a current mnemonic.
func Lookup(name string) (Op, bool) {
	op, ok := ops[name]
	return op, ok
}

// Deprecated returns the current mnemonic for a pre-standard one.
func Deprecated(name string) (string, bool) {
	current, ok := renamed[name]
	return current, ok
}

func mem(code byte, align uint32) Op { return Op{Code: code, Imm: ImmMemarg, Align: align} }

func misc(sub uint32) Op { return Op{Code: PrefixMisc, Sub: sub} }

var ops = map[string]Op{
	"unreachable":   {Code: 0x00},
	"nop":           {Code: 0x01},
	"br":            {Code: 0x0c, Imm: ImmLabel},
	"br_if":         {Code: 0x0d, Imm: ImmLabel},
	"br_table":      {Code: 0x0e, Imm: ImmBrTable},
	"return":        {Code: 0x0f},
	"call":          {Code: 0x10, Imm: ImmFunc},
	"call_indirect": {Code: 0x11, Imm: ImmCallIndirect},
	"drop":          {Code: 0x1a},
	"select":        {Code: 0x1b},

	"local.get":  {Code: 0x20, Imm: ImmLocal},
	"local.set":  {Code: 0x21, Imm: ImmLocal},
	"local.tee":  {Code: 0x22, Imm: ImmLocal},
	"global.get": {Code: 0x23, Imm: ImmGlobal},
	"global.set": {Code: 0x24, Imm: ImmGlobal},

	"i32.load":     mem(0x28, 2),
	"i64.load":     mem(0x29, 3),
	"f32.load":     mem(0x2a, 2),
	"f64.load":     mem(0x2b, 3),
	"i32.load8_s":  mem(0x2c, 0),
	"i32.load8_u":  mem(0x2d, 0),
	"i32.load16_s": mem(0x2e, 1),
	"i32.load16_u": mem(0x2f, 1),
	"i64.load8_s":  mem(0x30, 0),
	"i64.load8_u":  mem(0x31, 0),
	"i64.load16_s": mem(0x32, 1),
	"i64.load16_u": mem(0x33, 1),
	"i64.load32_s": mem(0x34, 2),
	"i64.load32_u": mem(0x35, 2),
	"i32.store":    mem(0x36, 2),
	"i64.store":    mem(0x37, 3),
	"f32.store":    mem(0x38, 2),
	"f64.store":    mem(0x39, 3),
	"i32.store8":   mem(0x3a, 0),
	"i32.store16":  mem(0x3b, 1),
	"i64.store8":   mem(0x3c, 0),
	"i64.store16":  mem(0x3d, 1),
	"i64.store32":  mem(0x3e, 2),
	"memory.size":  {Code: 0x3f, Imm: ImmMemory},
	"memory.grow":  {Code: 0x40, Imm: ImmMemory},

	"i32.const": {Code: 0x41, Imm: ImmI32},
	"i64.const": {Code: 0x42, Imm: ImmI64},
	"f32.const": {Code: 0x43, Imm: ImmF32},
	"f64.const": {Code: 0x44, Imm: ImmF64},

	"i32.eqz":  {Code: 0x45},
	"i32.eq":   {Code: 0x46},
	"i32.ne":   {Code: 0x47},
	"i32.lt_s": {Code: 0x48},
	"i32.lt_u": {Code: 0x49},
	"i32.gt_s": {Code: 0x4a},
	"i32.gt_u": {Code: 0x4b},
	"i32.le_s": {Code: 0x4c},
	"i32.le_u": {Code: 0x4d},
	"i32.ge_s": {Code: 0x4e},
	"i32.ge_u": {Code: 0x4f},

	"i64.eqz":  {Code: 0x50},
	"i64.eq":   {Code: 0x51},
	"i64.ne":   {Code: 0x52},
	"i64.lt_s": {Code: 0x53},
	"i64.lt_u": {Code: 0x54},
	"i64.gt_s": {Code: 0x55},
	"i64.gt_u": {Code: 0x56},
	"i64.le_s": {Code: 0x57},
	"i64.le_u": {Code: 0x58},
	"i64.ge_s": {Code: 0x59},
	"i64.ge_u": {Code: 0x5a},

	"f32.eq": {Code: 0x5b},
	"f32.ne": {Code: 0x5c},
	"f32.lt": {Code: 0x5d},
	"f32.gt": {Code: 0x5e},
	"f32.le": {Code: 0x5f},
	"f32.ge": {Code: 0x60},

	"f64.eq": {Code: 0x61},
	"f64.ne": {Code: 0x62},
	"f64.lt": {Code: 0x63},
	"f64.gt": {Code: 0x64},
	"f64.le": {Code: 0x65},
	"f64.ge": {Code: 0x66},

	"i32.clz":    {Code: 0x67},
	"i32.ctz":    {Code: 0x68},
	"i32.popcnt": {Code: 0x69},
	"i32.add":    {Code: 0x6a},
	"i32.sub":    {Code: 0x6b},
	"i32.mul":    {Code: 0x6c},
	"i32.div_s":  {Code: 0x6d},
	"i32.div_u":  {Code: 0x6e},
	"i32.rem_s":  {Code: 0x6f},
	"i32.rem_u":  {Code: 0x70},
	"i32.and":    {Code: 0x71},
	"i32.or":     {Code: 0x72},
	"i32.xor":    {Code: 0x73},
	"i32.shl":    {Code: 0x74},
	"i32.shr_s":  {Code: 0x75},
	"i32.shr_u":  {Code: 0x76},
	"i32.rotl":   {Code: 0x77},
	"i32.rotr":   {Code: 0x78},

	"i64.clz":    {Code: 0x79},
	"i64.ctz":    {Code: 0x7a},
	"i64.popcnt": {Code: 0x7b},
	"i64.add":    {Code: 0x7c},
	"i64.sub":    {Code: 0x7d},
	"i64.mul":    {Code: 0x7e},
	"i64.div_s":  {Code: 0x7f},
	"i64.div_u":  {Code: 0x80},
	"i64.rem_s":  {Code: 0x81},
	"i64.rem_u":  {Code: 0x82},
	"i64.and":    {Code: 0x83},
	"i64.or":     {Code: 0x84},
	"i64.xor":    {Code: 0x85},
	"i64.shl":    {Code: 0x86},
	"i64.shr_s":  {Code: 0x87},
	"i64.shr_u":  {Code: 0x88},
	"i64.rotl":   {Code: 0x89},
	"i64.rotr":   {Code: 0x8a},

	"f32.abs":      {Code: 0x8b},
	"f32.neg":      {Code: 0x8c},
	"f32.ceil":     {Code: 0x8d},
	"f32.floor":    {Code: 0x8e},
	"f32.trunc":    {Code: 0x8f},
	"f32.nearest":  {Code: 0x90},
	"f32.sqrt":     {Code: 0x91},
	"f32.add":      {Code: 0x92},
	"f32.sub":      {Code: 0x93},
	"f32.mul":      {Code: 0x94},
	"f32.div":      {Code: 0x95},
	"f32.min":      {Code: 0x96},
	"f32.max":      {Code: 0x97},
	"f32.copysign": {Code: 0x98},

	"f64.abs":      {Code: 0x99},
	"f64.neg":      {Code: 0x9a},
	"f64.ceil":     {Code: 0x9b},
	"f64.floor":    {Code: 0x9c},
	"f64.trunc":    {Code: 0x9d},
	"f64.nearest":  {Code: 0x9e},
	"f64.sqrt":     {Code: 0x9f},
	"f64.add":      {Code: 0xa0},
	"f64.sub":      {Code: 0xa1},
	"f64.mul":      {Code: 0xa2},
	"f64.div":      {Code: 0xa3},
	"f64.min":      {Code: 0xa4},
	"f64.max":      {Code: 0xa5},
	"f64.copysign": {Code: 0xa6},

	"i32.wrap_i64":        {Code: 0xa7},
	"i32.trunc_f32_s":     {Code: 0xa8},
	"i32.trunc_f32_u":     {Code: 0xa9},
	"i32.trunc_f64_s":     {Code: 0xaa},
	"i32.trunc_f64_u":     {Code: 0xab},
	"i64.extend_i32_s":    {Code: 0xac},
	"i64.extend_i32_u":    {Code: 0xad},
	"i64.trunc_f32_s":     {Code: 0xae},
	"i64.trunc_f32_u":     {Code: 0xaf},
	"i64.trunc_f64_s":     {Code: 0xb0},
	"i64.trunc_f64_u":     {Code: 0xb1},
	"f32.convert_i32_s":   {Code: 0xb2},
	"f32.convert_i32_u":   {Code: 0xb3},
	"f32.convert_i64_s":   {Code: 0xb4},
	"f32.convert_i64_u":   {Code: 0xb5},
	"f32.demote_f64":      {Code: 0xb6},
	"f64.convert_i32_s":   {Code: 0xb7},
	"f64.convert_i32_u":   {Code: 0xb8},
	"f64.convert_i64_s":   {Code: 0xb9},
	"f64.convert_i64_u":   {Code: 0xba},
	"f64.promote_f32":     {Code: 0xbb},
	"i32.reinterpret_f32": {Code: 0xbc},
	"i64.reinterpret_f64": {Code: 0xbd},
	"f32.reinterpret_i32": {Code: 0xbe},
	"f64.reinterpret_i64": {Code: 0xbf},

	"i32.extend8_s":  {Code: 0xc0},
	"i32.extend16_s": {Code: 0xc1},
	"i64.extend8_s":  {Code: 0xc2},
	"i64.extend16_s": {Code: 0xc3},
	"i64.extend32_s": {Code: 0xc4},

	"i32.trunc_sat_f32_s": misc(0),
	"i32.trunc_sat_f32_u": misc(1),
	"i32.trunc_sat_f64_s": misc(2),
	"i32.trunc_sat_f64_u": misc(3),
	"i64.trunc_sat_f32_s": misc(4),
	"i64.trunc_sat_f32_u": misc(5),
	"i64.trunc_sat_f64_s": misc(6),
	"i64.trunc_sat_f64_u": misc(7),
}

// renamed lists mnemonics from before the 2019 naming cleanup.
var renamed = map[string]string{
	"get_local":      "local.get",
	"set_local":      "local.set",
	"tee_local":      "local.tee",
	"get_global":     "global.get",
	"set_global":     "global.set",
	"current_memory": "memory.size",
	"grow_memory":    "memory.grow",

	"i32.wrap/i64":        "i32.wrap_i64",
	"i32.trunc_s/f32":     "i32.trunc_f32_s",
	"i32.trunc_u/f32":     "i32.trunc_f32_u",
	"i32.trunc_s/f64":     "i32.trunc_f64_s",
	"i32.trunc_u/f64":     "i32.trunc_f64_u",
	"i64.extend_s/i32":    "i64.extend_i32_s",
	"i64.extend_u/i32":    "i64.extend_i32_u",
	"i64.trunc_s/f32":     "i64.trunc_f32_s",
	"i64.trunc_u/f32":     "i64.trunc_f32_u",
	"i64.trunc_s/f64":     "i64.trunc_f64_s",
	"i64.trunc_u/f64":     "i64.trunc_f64_u",
	"f32.convert_s/i32":   "f32.convert_i32_s",
	"f32.convert_u/i32":   "f32.convert_i32_u",
	"f32.convert_s/i64":   "f32.convert_i64_s",
	"f32.convert_u/i64":   "f32.convert_i64_u",
	"f32.demote/f64":      "f32.demote_f64",
	"f64.convert_s/i32":   "f64.convert_i32_s",
	"f64.convert_u/i32":   "f64.convert_i32_u",
	"f64.convert_s/i64":   "f64.convert_i64_s",
	"f64.convert_u/i64":   "f64.convert_i64_u",
	"f64.promote/f32":     "f64.promote_f32",
	"i32.reinterpret/f32": "i32.reinterpret_f32",
	"i64.reinterpret/f64": "i64.reinterpret_f64",
	"f32.reinterpret/i32": "f32.reinterpret_i32",
	"f64.reinterpret/i64": "f64.reinterpret_i64",
}
