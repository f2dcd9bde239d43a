package framegrab

// Backend issues raw accesses against absolute bus addresses. Simulator,
// DevMem and SerialBridge implement it.
type Backend interface {
	ReadAt(addr uint32, width Width) (uint32, error)
	WriteAt(addr uint32, width Width, value uint32) error
	Close() error
}
