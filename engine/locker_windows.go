package engine

func platformLocker() SessionLocker {
	return CommandLocker{Name: "rundll32.exe", Args: []string{"user32.dll,LockWorkStation"}}
}
