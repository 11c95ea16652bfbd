package db

// IsUniqueViolation reports whether err represents a unique-constraint
// violation on any supported backend. The late-arriving dimension handler
// relies on this to treat a lost placeholder-insert race as benign: if the
// key is already there, the reference it was meant to satisfy is satisfied.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return isPgUniqueViolation(err) || isMSSQLUniqueViolation(err) || isSQLiteUniqueViolation(err)
}
