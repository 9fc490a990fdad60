package reconcile

import "runtime"

func runtimeYield() { runtime.Gosched() }
