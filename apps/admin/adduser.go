package main

import (
	"context"

	"github.com/fyplink/backend/core"
	"github.com/fyplink/backend/core/user"
)

type addUserOptions struct {
	username   string
	email      string
	password   string
	university string
	isAdmin    bool
	isIndustry bool
	isTeacher  bool
	isStudent  bool
}

func (opts addUserOptions) roles() []string {
	if opts.isAdmin {
		return user.AllRoles
	}
	var roles []string
	if opts.isIndustry {
		roles = append(roles, user.RoleIndustry)
	}
	if opts.isTeacher {
		roles = append(roles, user.RoleTeacher)
	}
	if opts.isStudent {
		roles = append(roles, user.RoleStudent)
	}
	return roles
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(opts addUserOptions) error {
	var usr user.User
	var err error
	ctx := context.Background()
	uname := core.CleanString(opts.username, true /* lower */)
	email := core.CleanString(opts.email, true /* lower */)

	if usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}}); err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Username: uname,
			Email:    email,
		}
	}
	if roles := opts.roles(); len(roles) > 0 {
		usr.Roles = roles
	}
	if university := core.CleanString(opts.university); university != "" {
		usr.University = university
	}
	usr.SetActive(true)
	if err := usr.SetPassword(opts.password); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
