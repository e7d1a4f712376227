package main

type greeter interface {
	greet(name string) string
}

type english struct{}

func (english) greet(name string) string { return "hello, " + name }

func welcome(g greeter, name string) string {
	return g.greet(name)
}

func unused() {}

func main() {
	println(welcome(english{}, "gopher"))
}
