package hello

type greeter interface{ greet() string }

type english struct{}

func (english) greet() string { return "hello" }

func Greet(g greeter) string { return g.greet() }

func Default() string { return Greet(english{}) }
