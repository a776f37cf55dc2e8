package mir

// CallingConvention selects the machine ABI a function's callers use.
type CallingConvention int

const (
	ConvHaxe CallingConvention = iota // source-language convention: implicit env parameter
	ConvC                             // host C ABI: no implicit parameter, subject to integer promotion
)

// Linkage is the function's visibility/origin per §3 invariant 3.
type Linkage int

const (
	LinkInternal Linkage = iota
	LinkExternal
	LinkImport
)

// Param is one function parameter: name, type, and the register it binds to.
type Param struct {
	Name string
	Type *Type
	Reg  Id
}

// Signature is a function's calling-convention-aware signature.
type Signature struct {
	Params       []Param
	ReturnType   *Type
	Convention   CallingConvention
	UsesSRet     bool // §3 invariant 4: a function returning Void in the machine ABI via a caller-supplied pointer
	Varargs      bool
}

// Attributes carries linkage and extern-ness, independent of the CFG shape.
type Attributes struct {
	Linkage  Linkage
	IsExtern bool
}

// Local describes a function-local value beyond its register type — used
// by the lowerer/checker to track declared (pre-SSA) variables that feed
// Alloc slots, and by the interpreter for debug naming.
type Local struct {
	Name string
	Type *Type
	Reg  Id
}

// CFG is a function's control-flow graph.
type CFG struct {
	Entry  BlockID
	Blocks map[BlockID]*Block
	// Order lists block IDs in declaration order, for deterministic
	// iteration (reverse-postorder is computed separately by RPO).
	Order []BlockID
}

func NewCFG(entry BlockID) *CFG {
	return &CFG{Entry: entry, Blocks: map[BlockID]*Block{}}
}

// AddBlock inserts b into the CFG, recording it in declaration order.
func (c *CFG) AddBlock(b *Block) {
	if _, exists := c.Blocks[b.ID]; !exists {
		c.Order = append(c.Order, b.ID)
	}
	c.Blocks[b.ID] = b
}

// Predecessors computes, for every block, the set of blocks whose
// terminator names it as a successor.
func (c *CFG) Predecessors() map[BlockID][]BlockID {
	preds := map[BlockID][]BlockID{}
	for _, id := range c.Order {
		b := c.Blocks[id]
		for _, succ := range b.Terminator.Successors() {
			preds[succ] = append(preds[succ], id)
		}
	}
	return preds
}

// ReversePostorder returns block IDs reachable from Entry in
// reverse-postorder, the order the native backend walks blocks in so
// definitions are emitted before uses (§4.4 "Body pass").
func (c *CFG) ReversePostorder() []BlockID {
	visited := map[BlockID]bool{}
	var postorder []BlockID
	var visit func(id BlockID)
	visit = func(id BlockID) {
		if visited[id] {
			return
		}
		visited[id] = true
		b, ok := c.Blocks[id]
		if !ok {
			return
		}
		for _, succ := range b.Terminator.Successors() {
			visit(succ)
		}
		postorder = append(postorder, id)
	}
	visit(c.Entry)
	rpo := make([]BlockID, len(postorder))
	for i, id := range postorder {
		rpo[len(postorder)-1-i] = id
	}
	return rpo
}

// Function is an IrFunction.
type Function struct {
	ID             FuncID
	Name           string
	QualifiedName  string
	Signature      Signature
	Attributes     Attributes
	CFG            *CFG // nil for extern declarations (§3 invariant 3)
	Locals         map[Id]Local
	RegisterTypes  map[Id]*Type // authoritative when it disagrees with an instruction's inferred type
	nextReg        Id
}

// NewFunction creates an empty Function ready to receive blocks.
func NewFunction(id FuncID, name string, sig Signature) *Function {
	return &Function{
		ID:            id,
		Name:          name,
		QualifiedName: name,
		Signature:     sig,
		Locals:        map[Id]Local{},
		RegisterTypes: map[Id]*Type{},
	}
}

// FreshReg allocates a new, function-unique Id and records its type.
func (f *Function) FreshReg(ty *Type) Id {
	id := f.nextReg
	f.nextReg++
	f.RegisterTypes[id] = ty
	return id
}

// IsExternDecl reports whether f is an extern declaration (empty CFG, Import linkage).
func (f *Function) IsExternDecl() bool {
	return f.CFG == nil
}

// NeedsEnvParam reports whether a CallDirect to f must implicitly pass an
// environment pointer as the first user parameter, per §3 invariant 5:
// true for Haxe-convention functions whose first parameter is not
// literally named "env" and which aren't C-convention.
func (f *Function) NeedsEnvParam() bool {
	if f.Signature.Convention != ConvHaxe {
		return false
	}
	if len(f.Signature.Params) > 0 && f.Signature.Params[0].Name == "env" {
		return false
	}
	return true
}
