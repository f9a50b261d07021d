package manifest

import "path/filepath"

const (
	FunctionsDirName = "functions"
	ServicesDirName  = "services"
)

// Layout names the files of an assembled deployment directory:
//
//	<root>/firebase.json
//	<root>/functions/{package.json,.env,index.js}
//	<root>/functions/services/index.js
//	<root>/functions/services/<service>/...
type Layout struct {
	Root string
}

func (l Layout) FirebaseJSON() string {
	return filepath.Join(l.Root, "firebase.json")
}

func (l Layout) FunctionsDir() string {
	return filepath.Join(l.Root, FunctionsDirName)
}

func (l Layout) PackageJSON() string {
	return filepath.Join(l.FunctionsDir(), "package.json")
}

func (l Layout) EnvFile() string {
	return filepath.Join(l.FunctionsDir(), ".env")
}

func (l Layout) EntryPoint() string {
	return filepath.Join(l.FunctionsDir(), "index.js")
}

func (l Layout) ServicesDir() string {
	return filepath.Join(l.FunctionsDir(), ServicesDirName)
}

func (l Layout) ServicesIndex() string {
	return filepath.Join(l.ServicesDir(), "index.js")
}
