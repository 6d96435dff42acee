package rpcerror

// ConstructorOptions customizes an error built from a declared code.
type ConstructorOptions struct {
	Message string
	Data    any
	Cause   error
}

// Constructor builds a defined error for one declared code.
type Constructor func(opts ConstructorOptions) *Error

// Constructors holds one constructor per declared code.
type Constructors map[Code]Constructor

// BuildConstructors returns constructors for every code in m. Each produces
// a defined error pre-seeded with the code's configured status and message.
// It panics if m declares an invalid status; call m.Validate first to get
// an error instead.
func BuildConstructors(m ErrorMap) Constructors {
	out := make(Constructors, len(m))
	for code, item := range m {
		out[code] = constructor(code, item)
	}
	return out
}

func constructor(code Code, item ErrorMapItem) Constructor {
	status := FallbackStatus(code, item.Status)
	if !ValidStatus(status) {
		panic(ErrInvalidStatus.Error() + ": " + string(code))
	}
	return func(opts ConstructorOptions) *Error {
		message := opts.Message
		if message == "" {
			message = item.Message
		}
		return &Error{
			Code:    code,
			Status:  status,
			Message: FallbackMessage(code, message),
			Data:    opts.Data,
			Defined: true,
			Cause:   opts.Cause,
		}
	}
}

// New builds an error for code. Declared codes use their constructor;
// other codes yield an undeclared error with the conventional status.
func (c Constructors) New(code Code, opts ConstructorOptions) *Error {
	if fn, ok := c[code]; ok {
		return fn(opts)
	}
	return Must(code, Options{Message: opts.Message, Data: opts.Data, Cause: opts.Cause})
}

// Has reports whether code is declared.
func (c Constructors) Has(code Code) bool {
	_, ok := c[code]
	return ok
}
