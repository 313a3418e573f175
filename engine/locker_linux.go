package engine

func platformLocker() SessionLocker {
	return CommandLocker{Name: "loginctl", Args: []string{"lock-session"}}
}
