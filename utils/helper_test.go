package utils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// run test command
// go test -v          								 	for all test
// go test -v -run=TestHelloWorld 			for individual func
// go test ./...												for all test in parent folder
func TestMain(m *testing.M) {
	//before
	fmt.Println("\nSTART UNIT TEST 'helper.go'")

	m.Run()

	//after
	fmt.Println("END UNIT TEST 'helper.go'")
}

func Test_StringInSlice(t *testing.T) {
	asserts := assert.New(t)
	keys := []string{"a", "b", "c", "d", "e", "f", "g"}

	asserts.True(StringInSlice("a", keys))
	asserts.True(StringInSlice("g", keys))
	asserts.False(StringInSlice("gg", keys))
	asserts.False(StringInSlice("a", nil))
}

func Test_IsValidEmail(t *testing.T) {
	asserts := assert.New(t)

	asserts.True(IsValidEmail("rain@example.com"))
	asserts.True(IsValidEmail("rain.walker+tag@example.co.id"))
	asserts.False(IsValidEmail("rain"))
	asserts.False(IsValidEmail("rain@"))
	asserts.False(IsValidEmail(""))
}

func Test_IsValidName(t *testing.T) {
	asserts := assert.New(t)

	ok, err := IsValidName("Rain Walker")
	asserts.True(ok)
	asserts.Nil(err)

	ok, err = IsValidName("")
	asserts.False(ok)
	asserts.NotNil(err)

	long := ""
	for i := 0; i < 51; i++ {
		long += "x"
	}
	ok, err = IsValidName(long)
	asserts.False(ok)
	asserts.NotNil(err)
}

func Test_NormalizeEmail(t *testing.T) {
	asserts := assert.New(t)

	asserts.Equal("rain@example.com", NormalizeEmail(" Rain@Example.COM "))
	asserts.Equal("", NormalizeEmail("  "))
}

func Test_UpgradeAvatar(t *testing.T) {
	asserts := assert.New(t)

	asserts.Equal(
		"https://lh3.googleusercontent.com/a/abc=s400-c",
		UpgradeAvatar("https://lh3.googleusercontent.com/a/abc=s96-c"),
	)
	// unknown shapes pass through untouched
	asserts.Equal("https://cdn.example.com/pic.png", UpgradeAvatar("https://cdn.example.com/pic.png"))
	asserts.Equal("", UpgradeAvatar(""))
}

func Test_ToRawMessage(t *testing.T) {
	asserts := assert.New(t)

	raw, err := ToRawMessage(map[string]string{"k": "v"})
	asserts.Nil(err)
	asserts.JSONEq(`{"k":"v"}`, string(raw))
}
