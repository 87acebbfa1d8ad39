// Command freetreectl exercises a free-list space and inspects its free
// chunk dictionary.
package main

func main() {
	execute()
}
