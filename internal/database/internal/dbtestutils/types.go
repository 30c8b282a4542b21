package dbtestutils

//go:generate go tool github.com/tinylib/msgp -io=false -tests=false
//msgp:tuple TestObj

type TestObj struct {
	Value string
}
