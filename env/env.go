package env

type Args struct {
	Config  *string
	Test    *bool
	Sim     *bool
	Serial  *string
	Verbose *bool
	Addr    *string
}
