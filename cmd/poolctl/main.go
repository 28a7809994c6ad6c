// Command poolctl inspects and exercises fixed-region memory pools.
package main

func main() {
	execute()
}
