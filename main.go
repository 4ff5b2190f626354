package main

import "github.com/frahmantamala/payment-reconciler/cmd"

func main() {
	cmd.Execute()
}
