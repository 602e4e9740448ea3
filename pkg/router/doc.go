// Package router maps application objects and their handlers onto a route
// tree.
//
// Handlers are method expressions registered against an owner type:
//
//	reg := router.NewRegistry()
//	root := router.OwnerOf[Root]()
//	reg.Get(root, "index", (*Root).Index)
//	reg.Post(root, "create", (*Root).Create, router.Args("thing"))
//
// The tree is then built from an explicit description of the object graph:
//
//	tree, err := router.Build(reg, router.Object(app,
//		router.Child("child", app.Child),
//	))
//
// Every object contributes one Leaf per mapping registered for its type and
// one Branch per declared child. Two leaves may share a segment when their
// methods differ.
//
// # Resolution
//
// Tree.Resolve splits the path into decoded segments and appends "index",
// so "/" finds the root's index leaf and "/child" finds child's. Branches
// match on segment; leaves match on segment and method. Segments past the
// leaf are returned for positional binding.
package router
