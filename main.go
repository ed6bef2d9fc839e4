package main

import "referral-ledger/cmd"

func main() {
	cmd.Execute()
}
